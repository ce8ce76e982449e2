// Package lock provides the cross-process lock that serializes backup cycles.
//
// A backup cycle stages, commits and pushes in a repository that may be shared
// by several statebak processes (for example a bot and a one-off
// "statebak backup" invocation). The lock is a marker file inside the
// repository's .git directory:
//
//	<repo>/.git/backup.lock
//
// The marker is created with O_CREATE|O_EXCL, so its presence is the
// exclusion state and there is no separate flag to get out of sync. Its
// content is the holder's PID, used only for diagnostics.
//
// # Staleness
//
// A holder that crashes leaves its marker behind. Once the marker's
// modification time is older than the stale threshold (five minutes by
// default) any acquirer may remove it and retry. Removal is serialized with
// a short OS-level lock on a sibling ".guard" file and the marker is
// re-checked under that guard, so two recovering processes never remove
// each other's fresh marker. The guard file is deleted again after each
// recovery, leaving the marker as the only file statebak adds to .git.
//
// # Usage
//
//	locker := lock.New("/srv/bot", lock.Options{Logger: log})
//	err := locker.WithLock(ctx, lock.DefaultTimeout, func() error {
//	    // stage, commit, push
//	    return nil
//	})
//
// Release never fails from the caller's point of view: problems removing the
// marker are logged and the next acquirer falls back to stale recovery.
package lock
