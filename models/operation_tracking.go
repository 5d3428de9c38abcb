package models

import (
	"context"
	"sync"
	"time"

	"accessplane/logger"
)

// OperationType names the kind of work an OperationContext traces. In
// this module only the orchestrator's Split and Merge runs start one
// (OpTypeOrchestrator), so the structured log lines they emit carry a
// correlation id
// without needing a metrics sink (§1 explicitly puts metric transports
// out of scope; this is pure log correlation).
type OperationType string

const (
	OpTypeFlush        OperationType = "FLUSH"
	OpTypePersist      OperationType = "PERSIST"
	OpTypeLoad         OperationType = "LOAD"
	OpTypeValidate     OperationType = "VALIDATE"
	OpTypeOrchestrator OperationType = "ORCHESTRATOR"
)

// OperationContext tracks the lifecycle of a single traced operation.
type OperationContext struct {
	ID        string
	Type      OperationType
	Subject   string
	StartTime time.Time
	EndTime   time.Time
	Status    string
	Err       error
	mu        sync.Mutex
}

// StartOperation begins tracking and logs the start.
func StartOperation(opType OperationType, subject string) *OperationContext {
	op := &OperationContext{
		ID:        NewID(),
		Type:      opType,
		Subject:   subject,
		StartTime: time.Now(),
		Status:    "started",
	}
	logger.Debug("started %s operation %s for %s", opType, op.ID, subject)
	return op
}

// Complete marks the operation as completed.
func (op *OperationContext) Complete() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.EndTime = time.Now()
	op.Status = "completed"
	logger.Debug("completed %s operation %s for %s (duration: %v)",
		op.Type, op.ID, op.Subject, op.EndTime.Sub(op.StartTime))
}

// Fail marks the operation as failed.
func (op *OperationContext) Fail(err error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.EndTime = time.Now()
	op.Status = "failed"
	op.Err = err
	logger.Error("failed %s operation %s for %s (duration: %v): %v",
		op.Type, op.ID, op.Subject, op.EndTime.Sub(op.StartTime), err)
}

type operationContextKey struct{}

// WithOperation attaches an OperationContext to ctx.
func WithOperation(ctx context.Context, op *OperationContext) context.Context {
	return context.WithValue(ctx, operationContextKey{}, op)
}

// OperationFromContext retrieves the OperationContext attached by WithOperation.
func OperationFromContext(ctx context.Context) (*OperationContext, bool) {
	op, ok := ctx.Value(operationContextKey{}).(*OperationContext)
	return op, ok
}
