package api

import (
	"time"

	"checkpoint-gateway/backend/internal/store"
)

// EventResponse reports the result of forwarding a server event.
type EventResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// HealthResponse describes service readiness.
type HealthResponse struct {
	Status           string `json:"status"`
	EngineConfigured bool   `json:"engine_configured"`
	AuditEnabled     bool   `json:"audit_enabled"`
	StreamClients    int    `json:"stream_clients"`
}

// CheckpointRecordDTO is the API representation of an audit row.
type CheckpointRecordDTO struct {
	ID                  string    `json:"id"`
	CheckpointName      string    `json:"checkpoint_name"`
	Decision            string    `json:"decision"`
	HTTPStatus          int       `json:"http_status"`
	VerificationID      string    `json:"verification_id,omitempty"`
	VerificationStatus  string    `json:"verification_status,omitempty"`
	VerificationOutcome string    `json:"verification_outcome,omitempty"`
	Message             string    `json:"message,omitempty"`
	SourceIP            string    `json:"source_ip,omitempty"`
	SessionID           string    `json:"session_id,omitempty"`
	UserID              string    `json:"user_id,omitempty"`
	DurationMs          int64     `json:"duration_ms"`
	CreatedAt           time.Time `json:"created_at"`
}

// CheckpointsResponse is the paginated response for audit rows.
type CheckpointsResponse struct {
	Items []CheckpointRecordDTO `json:"items"`
	Total int64                 `json:"total"`
}

// SummaryResponse aggregates audit rows per decision.
type SummaryResponse struct {
	Decisions []store.DecisionCount `json:"decisions"`
}

// RecordFromModel converts a store.CheckpointRecord into the DTO representation.
func RecordFromModel(r store.CheckpointRecord) CheckpointRecordDTO {
	return CheckpointRecordDTO{
		ID:                  r.ID,
		CheckpointName:      r.CheckpointName,
		Decision:            r.Decision,
		HTTPStatus:          r.HTTPStatus,
		VerificationID:      r.VerificationID,
		VerificationStatus:  r.VerificationStatus,
		VerificationOutcome: r.VerificationOutcome,
		Message:             r.Message,
		SourceIP:            r.SourceIP,
		SessionID:           r.SessionID,
		UserID:              r.UserID,
		DurationMs:          r.DurationMs,
		CreatedAt:           r.CreatedAt,
	}
}
