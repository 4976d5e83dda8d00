package dodgeball

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Verification statuses reported by the decision engine.
const (
	StatusPending  = "PENDING"
	StatusBlocked  = "BLOCKED"
	StatusComplete = "COMPLETE"
	StatusFailed   = "FAILED"
)

// Verification outcomes reported by the decision engine.
const (
	OutcomeApproved = "APPROVED"
	OutcomeDenied   = "DENIED"
	OutcomePending  = "PENDING"
	OutcomeError    = "ERROR"
)

// ErrorCodeTimeout marks a verification the engine abandoned.
const ErrorCodeTimeout = "TIMEOUT"

// Event is the envelope evaluated at a checkpoint.
type Event struct {
	IP   string `json:"ip"`
	Data any    `json:"data,omitempty"`
}

// CheckpointOptions tunes how the engine evaluates a checkpoint.
type CheckpointOptions struct {
	Sync    *bool `json:"sync,omitempty"`
	Timeout int   `json:"timeout,omitempty"`
}

// CheckpointRequest describes a single checkpoint invocation.
type CheckpointRequest struct {
	CheckpointName    string
	Event             Event
	SourceToken       string
	SessionID         string
	UserID            string
	UseVerificationID string
	Options           CheckpointOptions
}

// TrackEvent is a server-side event submitted for analysis.
type TrackEvent struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	EventTime int64  `json:"eventTime,omitempty"`
}

// TrackRequest carries a server event plus its correlation identifiers.
type TrackRequest struct {
	Event       TrackEvent
	SourceToken string
	SessionID   string
	UserID      string
}

// ResponseError is a single engine-reported failure.
type ResponseError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Errors is the engine's error list.
type Errors []ResponseError

// String joins the error messages into a single human-readable line.
func (e Errors) String() string {
	if len(e) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e))
	for _, item := range e {
		msg := strings.TrimSpace(item.Message)
		if msg == "" {
			msg = "unknown error"
		}
		if item.Code != 0 {
			msg = fmt.Sprintf("%d: %s", item.Code, msg)
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}

// StepData carries custom data attached by the verification workflow.
type StepData struct {
	CustomMessage string `json:"customMessage,omitempty"`
}

// VerificationError describes a failed verification step.
type VerificationError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Verification is the engine's record of a checkpoint evaluation. The raw
// document is retained so it can be echoed back without dropping fields the
// client does not model. A decoded Verification is read-only: MarshalJSON
// writes the original document and ignores later edits to the fields.
type Verification struct {
	ID        string             `json:"id,omitempty"`
	Status    string             `json:"status,omitempty"`
	Outcome   string             `json:"outcome,omitempty"`
	StepData  *StepData          `json:"stepData,omitempty"`
	NextSteps []json.RawMessage  `json:"nextSteps,omitempty"`
	Error     *VerificationError `json:"error,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON decodes the known fields and keeps the original document.
func (v *Verification) UnmarshalJSON(data []byte) error {
	type alias Verification
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*v = Verification(decoded)
	v.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the original document when one was decoded.
func (v Verification) MarshalJSON() ([]byte, error) {
	if len(v.raw) > 0 {
		return v.raw, nil
	}
	type alias Verification
	return json.Marshal(alias(v))
}

// CheckpointResponse is the full outcome of a checkpoint call.
type CheckpointResponse struct {
	Success      bool          `json:"success"`
	Errors       Errors        `json:"errors,omitempty"`
	Version      string        `json:"version,omitempty"`
	Verification *Verification `json:"verification,omitempty"`
}

// IsAllowed reports whether the engine approved the checkpoint.
func IsAllowed(resp *CheckpointResponse) bool {
	if resp == nil || !resp.Success || resp.Verification == nil {
		return false
	}
	return resp.Verification.Status == StatusComplete && resp.Verification.Outcome == OutcomeApproved
}

// IsRunning reports whether evaluation is still in progress.
func IsRunning(resp *CheckpointResponse) bool {
	if resp == nil || !resp.Success || resp.Verification == nil {
		return false
	}
	switch resp.Verification.Status {
	case StatusPending, StatusBlocked:
		return true
	}
	return false
}

// IsDenied reports whether the engine rejected the checkpoint.
func IsDenied(resp *CheckpointResponse) bool {
	if resp == nil || !resp.Success || resp.Verification == nil {
		return false
	}
	return resp.Verification.Outcome == OutcomeDenied
}

// IsUndecided reports a completed verification that reached no decision.
func IsUndecided(resp *CheckpointResponse) bool {
	if resp == nil || !resp.Success || resp.Verification == nil {
		return false
	}
	return resp.Verification.Status == StatusComplete && resp.Verification.Outcome == OutcomePending
}

// HasFailed reports a verification the engine could not complete.
func HasFailed(resp *CheckpointResponse) bool {
	if resp == nil || resp.Verification == nil {
		return false
	}
	return resp.Verification.Status == StatusFailed || resp.Verification.Outcome == OutcomeError
}

// HasTimedOut reports whether the engine gave up before reaching a decision.
func HasTimedOut(resp *CheckpointResponse) bool {
	if resp == nil || resp.Verification == nil || resp.Verification.Error == nil {
		return false
	}
	return strings.EqualFold(resp.Verification.Error.Code, ErrorCodeTimeout)
}
