package models

import "time"

// PidRequest outcomes.
const (
	PidRequestStatusSuccess = "success"
	PidRequestStatusError   = "error"
)

// PidRequest is one row per attempt to synchronize a document with the remote
// pid authority. The trail is append-only; rows are only touched again to mark
// later resolution.
type PidRequest struct {
	ID          string     `db:"id" json:"id"`
	DocumentID  *string    `db:"document_id" json:"document_id,omitempty"`
	Origin      string     `db:"origin" json:"origin"`
	Status      string     `db:"status" json:"status"`
	ErrorType   *string    `db:"error_type" json:"error_type,omitempty"`
	ErrorMsg    *string    `db:"error_msg" json:"error_msg,omitempty"`
	RawResponse *string    `db:"raw_response" json:"raw_response,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
