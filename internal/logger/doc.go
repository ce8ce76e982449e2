// Package logger provides logging facilities for statebak.
//
// Two audiences are served by one interface. Internal messages (Info,
// Warning, Error) are written as structured zerolog JSON entries to a log
// file when debug logging is enabled. User-facing messages (InfoToUser,
// WarningToUser, Success, StatusMessage) are printed to the terminal with an
// emoji prefix and, when enabled, mirrored into the log file.
//
// # Secrets
//
// The backup subsystem handles a credential token that is embedded in the
// remote URL git talks to. Register it once with AddSecret and every message
// from the logger and all of its children has the token replaced by "***"
// before it is written anywhere:
//
//	log := logger.New(cfg.Debug, cfg.LogFile, cfg.Verbose)
//	log.AddSecret(cfg.AuthToken)
//	engineLog := log.With("component", "engine")
//
// # Thread Safety
//
// DefaultLogger and its children share one mutex and are safe for
// concurrent use.
package logger
