// Package backup ties the queue, the lock and the git engine together.
//
// A Manager is created once per repository. Producers call QueueBackup after
// rewriting a tracked file; the background worker checks the queue every
// WorkerInterval and, when a batch is due, runs one backup cycle for the
// drained files. Callers that need to know the outcome use BackupNow, which
// runs a cycle on their own goroutine.
//
// Shutdown stops the worker, giving an in-flight cycle at most the shutdown
// timeout before cancelling it, and then flushes whatever is still pending
// exactly once. The final flush is limited only by the git command
// timeouts.
//
//	mgr, err := backup.New(ctx, cfg, backup.Options{Logger: log})
//	if err != nil {
//	    return err
//	}
//	defer mgr.Shutdown(context.Background())
//
//	mgr.QueueBackup("users.json")
package backup
