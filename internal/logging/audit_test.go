// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSanitizeEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"", "***"},
		{"invalid", "***"},
		{"a@b.com", "***@b.com"},
		{"ab@example.com", "***@example.com"},
		{"john.doe@example.com", "jo***@example.com"},
	}

	for _, tt := range tests {
		result := SanitizeEmail(tt.input)
		if result != tt.expected {
			t.Errorf("SanitizeEmail(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSanitizeUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"", "***"},
		{"a", "***"},
		{"ab", "***"},
		{"johndoe", "jo***"},
		{"administrator", "ad***"},
	}

	for _, tt := range tests {
		result := SanitizeUsername(tt.input)
		if result != tt.expected {
			t.Errorf("SanitizeUsername(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSanitizeOperator(t *testing.T) {
	t.Parallel()

	if got := SanitizeOperator("jane@station.fm"); got != "ja***@station.fm" {
		t.Errorf("SanitizeOperator(email) = %q", got)
	}
	if got := SanitizeOperator("jane"); got != "ja***" {
		t.Errorf("SanitizeOperator(username) = %q", got)
	}
	if got := SanitizeOperator(""); got != "" {
		t.Errorf("SanitizeOperator(empty) = %q, want empty", got)
	}
}

func TestSanitizeError_LongError(t *testing.T) {
	t.Parallel()

	longErr := strings.Repeat("a", 250)
	result := SanitizeError(longErr)

	if len(result) > 210 { // 200 + "..."
		t.Errorf("expected truncated error, got length %d", len(result))
	}
	if !strings.HasSuffix(result, "...") {
		t.Error("expected truncation suffix")
	}
}

func TestAuditLogger_LogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	auditLog := NewAuditLoggerWithLogger(logger)

	auditLog.LogEvent(&AuditEvent{
		Action:      "link",
		Signature:   "abc123",
		WorkID:      "work-1",
		PerformedBy: "jane@station.fm",
		Success:     true,
	})

	output := buf.String()
	if !strings.Contains(output, `"action":"link"`) {
		t.Errorf("expected action in output: %s", output)
	}
	if !strings.Contains(output, `"status":"success"`) {
		t.Errorf("expected success status in output: %s", output)
	}
	if !strings.Contains(output, "ja***@station.fm") {
		t.Errorf("expected sanitized performed_by in output: %s", output)
	}
}

func TestAuditLogger_LogFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	auditLog := NewAuditLoggerWithLogger(logger)

	auditLog.LogFailure("promote", "abc123", nil, errors.New("signature mismatch"))

	output := buf.String()
	if !strings.Contains(output, `"status":"failed"`) {
		t.Errorf("expected failed status in output: %s", output)
	}
	if !strings.Contains(output, "signature mismatch") {
		t.Errorf("expected error detail in output: %s", output)
	}
}

func TestAuditLogger_LogPromote(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	auditLog := NewAuditLoggerWithLogger(logger)

	by := "operator"
	auditLog.LogPromote("abc123", "work-1", "rec-1", &by)

	output := buf.String()
	if !strings.Contains(output, `"action":"promote"`) {
		t.Errorf("expected promote action: %s", output)
	}
	if !strings.Contains(output, `"recording_id":"rec-1"`) {
		t.Errorf("expected recording_id in output: %s", output)
	}
}

func TestAuditLogger_LogUndo(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	auditLog := NewAuditLoggerWithLogger(logger)

	auditLog.LogUndo("audit-1", "promote", nil)

	output := buf.String()
	if !strings.Contains(output, `"action":"undo"`) {
		t.Errorf("expected undo action: %s", output)
	}
	if !strings.Contains(output, `"audit_id":"audit-1"`) {
		t.Errorf("expected audit_id in output: %s", output)
	}
}

func TestNewAuditLogger(t *testing.T) {
	auditLog := NewAuditLogger()
	if auditLog == nil {
		t.Error("expected non-nil audit logger")
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a longer string", 10, "this is a ..."},
	}

	for _, tt := range tests {
		result := truncateString(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}
