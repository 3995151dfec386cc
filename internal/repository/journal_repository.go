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

// JournalRepository persists journal identities keyed by their ISSN pair.
type JournalRepository struct {
	db *sqlx.DB
}

// NewJournalRepository constructs the repository.
func NewJournalRepository(db *sqlx.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// GetOrCreate finds the journal matching either ISSN, creating the row on
// first reference.
func (r *JournalRepository) GetOrCreate(ctx context.Context, issnElectronic, issnPrint *string) (*models.JournalIdentity, error) {
	found, err := r.Find(ctx, issnElectronic, issnPrint)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}

	journal := &models.JournalIdentity{
		ID:             uuid.NewString(),
		ISSNElectronic: issnElectronic,
		ISSNPrint:      issnPrint,
	}
	const query = `INSERT INTO journals (id, issn_electronic, issn_print)
	VALUES (:id, :issn_electronic, :issn_print)`
	if _, err := r.db.NamedExecContext(ctx, query, journal); err != nil {
		// A concurrent insert may have won the race; re-read before failing.
		if existing, lookupErr := r.Find(ctx, issnElectronic, issnPrint); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create journal: %w", err)
	}
	return journal, nil
}

// Find returns the journal matching either ISSN, nil when unknown.
func (r *JournalRepository) Find(ctx context.Context, issnElectronic, issnPrint *string) (*models.JournalIdentity, error) {
	const query = `SELECT id, issn_electronic, issn_print FROM journals
	WHERE ($1::text IS NOT NULL AND issn_electronic = $1)
	   OR ($2::text IS NOT NULL AND issn_print = $2)
	LIMIT 1`
	var journal models.JournalIdentity
	if err := r.db.GetContext(ctx, &journal, query, issnElectronic, issnPrint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find journal by issn: %w", err)
	}
	return &journal, nil
}
