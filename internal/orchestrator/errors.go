package orchestrator

import (
	"errors"
	"fmt"
)

// ErrCallAlreadyActive is returned when a start is requested for a call that
// already has a running stream.
var ErrCallAlreadyActive = errors.New("orchestrator: call already active")

// ConfigurationError means the call's voice agent cannot conduct a call.
type ConfigurationError struct {
	VoiceAgentID string
	Reason       string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("voice agent %q: %s", e.VoiceAgentID, e.Reason)
}

// ValidationError means the call itself is malformed or not startable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// UpstreamError wraps a failure of a text or speech provider.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }
