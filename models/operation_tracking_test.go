package models

import (
	"context"
	"errors"
	"testing"
)

func TestOperationContextCompleteSetsStatus(t *testing.T) {
	op := StartOperation(OpTypeFlush, "shard-0")
	if op.Status != "started" {
		t.Fatalf("Status = %q, want started", op.Status)
	}
	op.Complete()
	if op.Status != "completed" {
		t.Fatalf("Status = %q, want completed", op.Status)
	}
	if op.EndTime.Before(op.StartTime) {
		t.Fatal("EndTime must not precede StartTime")
	}
}

func TestOperationContextFailRecordsError(t *testing.T) {
	op := StartOperation(OpTypePersist, "backup")
	cause := errors.New("disk full")
	op.Fail(cause)
	if op.Status != "failed" {
		t.Fatalf("Status = %q, want failed", op.Status)
	}
	if op.Err != cause {
		t.Fatalf("Err = %v, want %v", op.Err, cause)
	}
}

func TestOperationContextRoundTripsThroughContext(t *testing.T) {
	op := StartOperation(OpTypeValidate, "alice")
	ctx := WithOperation(context.Background(), op)

	got, ok := OperationFromContext(ctx)
	if !ok {
		t.Fatal("OperationFromContext should find the attached operation")
	}
	if got != op {
		t.Fatal("OperationFromContext should return the same instance attached by WithOperation")
	}

	if _, ok := OperationFromContext(context.Background()); ok {
		t.Fatal("OperationFromContext should report false on a context with no operation attached")
	}
}
