// Package runtime executes untrusted guest code in isolated interpreter
// subprocesses. Guest code may call back into the host's operation catalog
// mid-run through a line-oriented protocol multiplexed over the process's
// standard streams.
package runtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request is one guest-code execution submitted by a caller. Immutable.
type Request struct {
	// Code is the guest program text. Delivered over stdin, never argv.
	Code string

	// Timeout overrides the executor's default wall-clock limit when > 0.
	Timeout time.Duration

	// Isolated forces a fresh single-shot process instead of a pooled one.
	Isolated bool
}

// OutcomeKind tags the terminal result of an execution.
type OutcomeKind string

const (
	OutcomeSuccess       OutcomeKind = "success"
	OutcomeGuestError    OutcomeKind = "guest_error"
	OutcomeProtocolError OutcomeKind = "protocol_error"
	OutcomeInfraError    OutcomeKind = "infrastructure_error"
)

// InfraKind subdivides infrastructure failures.
type InfraKind string

const (
	InfraCrash         InfraKind = "crash"
	InfraTimeout       InfraKind = "timeout"
	InfraLaunchFailure InfraKind = "launch-failure"
)

// Outcome is the single terminal result of a Request. Exactly one is
// produced per request, even under crash or timeout, and it is never
// mutated after construction.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Payload holds the guest's final value on success. Its shape is
	// opaque here; interpretation belongs to the caller.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Message describes the failure for all non-success kinds.
	Message string `json:"message,omitempty"`

	// Excerpt is a bounded tail of the raw process output, kept for
	// debugging protocol failures.
	Excerpt string `json:"excerpt,omitempty"`

	// Infra is set when Kind is OutcomeInfraError.
	Infra InfraKind `json:"infra,omitempty"`
}

func Success(payload json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

func GuestError(message string) Outcome {
	return Outcome{Kind: OutcomeGuestError, Message: message}
}

func ProtocolError(message, excerpt string) Outcome {
	return Outcome{Kind: OutcomeProtocolError, Message: message, Excerpt: excerpt}
}

func InfraError(kind InfraKind, format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeInfraError, Infra: kind, Message: fmt.Sprintf(format, args...)}
}
