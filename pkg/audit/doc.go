// Package audit records security relevant events: logins, token refreshes,
// registrations, role changes, deletions and denied requests.
//
// Loggers:
//
//   - LogrusLogger: JSON lines through logrus, usually to stdout
//   - DBLogger: rows in the audit_events table
//   - MultiLogger: fan-out to several loggers
//
// Request id and client IP are taken from the context when the event does
// not set them.
//
//	logger := audit.NewMultiLogger(audit.NewLogrusLogger(os.Stdout), dbLogger)
//	_ = logger.Log(ctx, &audit.Event{
//		Type:   audit.EventTypeAuthLoginFailed,
//		Status: audit.EventStatusFailure,
//	})
package audit
