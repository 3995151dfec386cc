package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scielo-br/pid-provider/internal/models"
)

// IssueRepository persists issue identities. Uniqueness covers the journal,
// publication year and the nullable volume, number and supplement markers.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository constructs the repository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// GetOrCreate finds the issue with the exact identity, creating the row on
// first reference.
func (r *IssueRepository) GetOrCreate(ctx context.Context, issue models.IssueIdentity) (*models.IssueIdentity, error) {
	found, err := r.Find(ctx, issue)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}

	issue.ID = uuid.NewString()
	const query = `INSERT INTO issues (id, journal_id, pub_year, volume, number, suppl)
	VALUES (:id, :journal_id, :pub_year, :volume, :number, :suppl)`
	if _, err := r.db.NamedExecContext(ctx, query, &issue); err != nil {
		if existing, lookupErr := r.Find(ctx, issue); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return &issue, nil
}

// Find returns the issue with the exact identity, nil when unknown.
func (r *IssueRepository) Find(ctx context.Context, issue models.IssueIdentity) (*models.IssueIdentity, error) {
	const query = `SELECT id, journal_id, pub_year, volume, number, suppl FROM issues
	WHERE journal_id = $1 AND pub_year = $2
	  AND volume IS NOT DISTINCT FROM $3
	  AND number IS NOT DISTINCT FROM $4
	  AND suppl IS NOT DISTINCT FROM $5`
	var found models.IssueIdentity
	err := r.db.GetContext(ctx, &found, query, issue.JournalID, issue.PubYear, issue.Volume, issue.Number, issue.Suppl)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find issue: %w", err)
	}
	return &found, nil
}
