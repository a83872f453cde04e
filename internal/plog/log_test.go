package plog

import "testing"

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New("not-a-level"); err == nil {
		t.Error("New(\"not-a-level\") returned nil error, want non-nil")
	}
}

func TestNewNopDoesNotPanic(t *testing.T) {
	logger := NewNop()
	logger.Debug("x")
	logger.Info("x")
	logger.Warning("x")
	logger.Audit("x")
	logger.AuditErr("x")
	logger.WithField("k", "v").Info("x")
}
