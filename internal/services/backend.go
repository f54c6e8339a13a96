package services

import (
	"context"
	"fmt"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/google/uuid"
)

// Backend names, also reported in model.Result.
const (
	BackendHost    = "host"
	BackendSerial  = "serial"
	BackendSystem  = "system"
	BackendPreview = "preview"
)

// Request is one physical print operation: a single Document's bytes.
type Request struct {
	JobID  uuid.UUID
	Kind   model.JobKind
	Copy   int // 0 for single jobs and client copies, 1 for the agent copy
	Data   []byte
	Config *model.PrinterConfiguration
}

// TransportBackend delivers raw ESC/POS bytes somewhere.
type TransportBackend interface {
	Name() string
	// Available reports whether the backend can be used right now.
	Available(ctx context.Context) bool
	Send(ctx context.Context, req Request) error
}

// IndependentPrompter is implemented by host backends that can ask the user
// for configuration on their own, which lets the agent copy of a pair go out
// even when the client copy failed.
type IndependentPrompter interface {
	IndependentPrompting() bool
}

type TransportError struct {
	Backend string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
