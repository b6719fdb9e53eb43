package utils

import (
	"context"
	"testing"
	"time"
)

func TestRunLockScriptCompiles(t *testing.T) {
	// Compile-time smoke test: script should be initialized.
	if runLockReleaseScript == nil {
		t.Fatalf("expected script to be initialized")
	}
}

func TestRedisHelpersValidateInputs(t *testing.T) {
	ctx := context.Background()

	if _, err := MarkFirstDelivery(ctx, nil, "k", time.Minute); err == nil {
		t.Fatalf("nil client must be rejected")
	}
	if _, err := AcquireRunLock(ctx, nil, "k", "t", time.Minute); err == nil {
		t.Fatalf("nil client must be rejected")
	}
	if err := ReleaseRunLock(ctx, nil, "k", "t"); err == nil {
		t.Fatalf("nil client must be rejected")
	}
}
