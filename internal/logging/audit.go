// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// AuditEvent is one verification-action log entry: a Link, Promote,
// Dismiss, or Undo (models.AuditAction) applied to a Discovery Queue
// signature. AuditLogger keeps this package a leaf: it logs the action's
// string name rather than importing internal/models.
type AuditEvent struct {
	Action      string
	Signature   string
	WorkID      string
	RecordingID string
	AuditID     string
	PerformedBy string
	Success     bool
	Error       string
}

// AuditLogger provides structured logging for verification actions.
// Every audit row the
// VerificationService produces gets a matching log line, so an operator
// can correlate the append-only VerificationAudit trail against the
// daemon's own logs without a database round trip.
type AuditLogger struct {
	logger zerolog.Logger
}

// NewAuditLogger creates a logger configured for verification actions.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{logger: With().Str("component", "verification").Logger()}
}

// NewAuditLoggerWithLogger creates an AuditLogger over a caller-supplied
// zerolog.Logger, for tests that want to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value (copy-on-write semantics)
func NewAuditLoggerWithLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With().Str("component", "verification").Logger()}
}

// LogEvent logs one verification action. PerformedBy and Error are
// sanitized before they reach the log line: PerformedBy may carry an
// operator's email or username, and Error may echo a raw store-layer
// message that isn't meant for the audit surface.
func (a *AuditLogger) LogEvent(e *AuditEvent) {
	status := "success"
	level := a.logger.Info()
	if !e.Success {
		status = "failed"
		level = a.logger.Warn()
	}

	evt := level.Str("action", e.Action).Str("status", status)
	if e.Signature != "" {
		evt = evt.Str("signature", e.Signature)
	}
	if e.WorkID != "" {
		evt = evt.Str("work_id", e.WorkID)
	}
	if e.RecordingID != "" {
		evt = evt.Str("recording_id", e.RecordingID)
	}
	if e.AuditID != "" {
		evt = evt.Str("audit_id", e.AuditID)
	}
	if e.PerformedBy != "" {
		evt = evt.Str("performed_by", SanitizeOperator(e.PerformedBy))
	}
	if e.Error != "" {
		evt = evt.Str("error", SanitizeError(e.Error))
	}
	evt.Msg("verification action " + e.Action)
}

// LogLink logs a successful resolution of a queued signature to an
// existing Work.
func (a *AuditLogger) LogLink(signature, workID string, performedBy *string) {
	a.LogEvent(&AuditEvent{Action: "link", Signature: signature, WorkID: workID, PerformedBy: derefOperator(performedBy), Success: true})
}

// LogPromote logs a successful promotion of a queued signature into a
// newly upserted catalog hierarchy.
func (a *AuditLogger) LogPromote(signature, workID, recordingID string, performedBy *string) {
	a.LogEvent(&AuditEvent{Action: "promote", Signature: signature, WorkID: workID, RecordingID: recordingID, PerformedBy: derefOperator(performedBy), Success: true})
}

// LogDismiss logs a queued signature removed from consideration without a
// bridge.
func (a *AuditLogger) LogDismiss(signature string, performedBy *string) {
	a.LogEvent(&AuditEvent{Action: "dismiss", Signature: signature, PerformedBy: derefOperator(performedBy), Success: true})
}

// LogUndo logs a reversal of a prior Link/Promote/Dismiss action.
func (a *AuditLogger) LogUndo(auditID string, reversedAction string, performedBy *string) {
	a.LogEvent(&AuditEvent{Action: "undo", AuditID: auditID, PerformedBy: derefOperator(performedBy), Signature: reversedAction, Success: true})
}

// LogFailure logs a verification action that failed before producing an
// audit row.
func (a *AuditLogger) LogFailure(action, signature string, performedBy *string, err error) {
	a.LogEvent(&AuditEvent{Action: action, Signature: signature, PerformedBy: derefOperator(performedBy), Success: false, Error: err.Error()})
}

func derefOperator(performedBy *string) string {
	if performedBy == nil {
		return ""
	}
	return *performedBy
}

// SanitizeOperator masks an operator identifier (email or username) down
// to a recognizable-but-not-reversible fragment before it reaches a log
// sink. An address is masked keeping its domain; anything else falls back
// to a short prefix/suffix reveal.
func SanitizeOperator(value string) string {
	if value == "" {
		return ""
	}
	if strings.Contains(value, "@") {
		return SanitizeEmail(value)
	}
	return SanitizeUsername(value)
}

// SanitizeUsername masks a username, keeping a short leading fragment.
func SanitizeUsername(username string) string {
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

// SanitizeEmail masks an email's local part, keeping the domain intact so
// logs remain useful for tracing which station or tenant an operator
// belongs to.
func SanitizeEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}

// SanitizeError strips a raw error string down to a fixed-length summary
// so an unexpectedly long or data-bearing error message from the store
// layer never bloats the audit log.
func SanitizeError(err string) string {
	return truncateString(err, 200)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
