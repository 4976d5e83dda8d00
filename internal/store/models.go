package store

import (
	"time"
)

// CheckpointRecord is the audit row written for every checkpoint invocation.
type CheckpointRecord struct {
	ID                  string `gorm:"primaryKey;size:36"`
	CheckpointName      string `gorm:"size:128;index"`
	Decision            string `gorm:"size:32;index"`
	HTTPStatus          int
	VerificationID      string `gorm:"size:64;index"`
	VerificationStatus  string `gorm:"size:32"`
	VerificationOutcome string `gorm:"size:32"`
	Message             string `gorm:"type:text"`
	SourceIP            string `gorm:"size:64"`
	SessionID           string `gorm:"size:128"`
	UserID              string `gorm:"size:128;index"`
	DurationMs          int64
	CreatedAt           time.Time `gorm:"autoCreateTime;index"`
}

// CheckpointQuery filters and paginates audit rows.
type CheckpointQuery struct {
	CheckpointName string
	Decision       string
	UserID         string
	Offset         int
	Limit          int
}

// DecisionCount is the number of audit rows per decision.
type DecisionCount struct {
	Decision string `json:"decision"`
	Total    int64  `json:"total"`
}
