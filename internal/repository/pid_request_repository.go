package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scielo-br/pid-provider/internal/models"
)

// PidRequestRepository stores the append-only trail of synchronization
// attempts against the central registry.
type PidRequestRepository struct {
	db *sqlx.DB
}

// NewPidRequestRepository constructs the repository.
func NewPidRequestRepository(db *sqlx.DB) *PidRequestRepository {
	return &PidRequestRepository{db: db}
}

// Create appends one attempt row.
func (r *PidRequestRepository) Create(ctx context.Context, request *models.PidRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO pid_requests
	(id, document_id, origin, status, error_type, error_msg, raw_response, created_by, created_at, resolved_at)
	VALUES (:id, :document_id, :origin, :status, :error_type, :error_msg, :raw_response, :created_by, :created_at, :resolved_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create pid request: %w", err)
	}
	return nil
}

// MarkResolved closes every open failed attempt for a document after a later
// attempt succeeds.
func (r *PidRequestRepository) MarkResolved(ctx context.Context, documentID string) error {
	const query = `UPDATE pid_requests SET resolved_at = $2
	WHERE document_id = $1 AND status = $3 AND resolved_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, documentID, time.Now().UTC(), models.PidRequestStatusError); err != nil {
		return fmt.Errorf("resolve pid requests: %w", err)
	}
	return nil
}

// ListUnresolved returns open failed attempts, oldest first.
func (r *PidRequestRepository) ListUnresolved(ctx context.Context, limit int) ([]models.PidRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT id, document_id, origin, status, error_type, error_msg, raw_response, created_by, created_at, resolved_at
	FROM pid_requests WHERE status = $1 AND resolved_at IS NULL ORDER BY created_at ASC LIMIT %d`, limit)
	var requests []models.PidRequest
	if err := r.db.SelectContext(ctx, &requests, query, models.PidRequestStatusError); err != nil {
		return nil, fmt.Errorf("list unresolved pid requests: %w", err)
	}
	return requests, nil
}
