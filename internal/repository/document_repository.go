package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/scielo-br/pid-provider/internal/models"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

const documentColumns = `id, shape, v3, v2, aop_pid, journal_id, issue_id,
       fpage, fpage_seq, lpage, elocation_id,
       main_doi, article_titles, surnames, collab, links, partial_body,
       pkg_name, article_pub_year, is_published, origin_date, registered_in_core, synchronized,
       created_by, created_at, updated_at`

// DocumentRepository persists registered documents and their xml versions.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create stores a new document record. Unique constraint violations on any
// pid column surface as a typed uniqueness error so callers can regenerate
// and retry.
func (r *DocumentRepository) Create(ctx context.Context, record *models.DocumentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents
	(id, shape, v3, v2, aop_pid, journal_id, issue_id,
	 fpage, fpage_seq, lpage, elocation_id,
	 main_doi, article_titles, surnames, collab, links, partial_body,
	 pkg_name, article_pub_year, is_published, origin_date, registered_in_core, synchronized,
	 created_by, created_at, updated_at)
	VALUES (:id, :shape, :v3, :v2, :aop_pid, :journal_id, :issue_id,
	 :fpage, :fpage_seq, :lpage, :elocation_id,
	 :main_doi, :article_titles, :surnames, :collab, :links, :partial_body,
	 :pkg_name, :article_pub_year, :is_published, :origin_date, :registered_in_core, :synchronized,
	 :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return mapUniqueViolation(err, "create document")
	}
	return nil
}

// Update rewrites the mutable columns of an existing record.
func (r *DocumentRepository) Update(ctx context.Context, record *models.DocumentRecord) error {
	now := time.Now().UTC()
	record.UpdatedAt = &now
	const query = `UPDATE documents SET
	 shape = :shape, v3 = :v3, v2 = :v2, aop_pid = :aop_pid,
	 journal_id = :journal_id, issue_id = :issue_id,
	 fpage = :fpage, fpage_seq = :fpage_seq, lpage = :lpage, elocation_id = :elocation_id,
	 main_doi = :main_doi, article_titles = :article_titles, surnames = :surnames,
	 collab = :collab, links = :links, partial_body = :partial_body,
	 pkg_name = :pkg_name, article_pub_year = :article_pub_year, is_published = :is_published,
	 origin_date = :origin_date,
	 registered_in_core = :registered_in_core, synchronized = :synchronized,
	 updated_at = :updated_at
	WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return mapUniqueViolation(err, "update document")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByV3 retrieves one record by its opaque pid.
func (r *DocumentRepository) GetByV3(ctx context.Context, v3 string) (*models.DocumentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE v3 = $1`, documentColumns)
	var record models.DocumentRecord
	if err := r.db.GetContext(ctx, &record, query, v3); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document by v3: %w", err)
	}
	return &record, nil
}

// QueryOne executes a single lookup of the match plan. It returns nil when no
// row matches and a typed conflict error when the filter is ambiguous.
func (r *DocumentRepository) QueryOne(ctx context.Context, filter models.DocumentFilter) (*models.DocumentRecord, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("SELECT %s FROM documents", documentColumns))
	args := make([]interface{}, 0, 12)
	conditions := make([]string, 0, 12)

	appendEq := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	appendNullable := func(column string, value *string) {
		if value == nil {
			conditions = append(conditions, fmt.Sprintf("%s IS NULL", column))
			return
		}
		appendEq(column, *value)
	}

	if filter.Shape != "" {
		appendEq("shape", string(filter.Shape))
	}
	if filter.JournalID != "" {
		appendEq("journal_id", filter.JournalID)
	}
	if filter.ByIssue {
		appendNullable("issue_id", filter.IssueID)
	}
	if filter.ByPages {
		appendNullable("fpage", filter.FPage)
		appendNullable("fpage_seq", filter.FPageSeq)
		appendNullable("lpage", filter.LPage)
		appendNullable("elocation_id", filter.ElocationID)
	}
	if filter.MainDOI != nil {
		appendEq("main_doi", *filter.MainDOI)
	}
	if filter.ArticleTitles != nil {
		appendEq("article_titles", *filter.ArticleTitles)
	}
	if filter.Surnames != nil {
		appendEq("surnames", *filter.Surnames)
	}
	if filter.Collab != nil {
		appendEq("collab", *filter.Collab)
	}
	if filter.Links != nil {
		appendEq("links", *filter.Links)
	}
	if filter.PartialBody != nil {
		appendEq("partial_body", *filter.PartialBody)
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at ASC LIMIT 2")

	var records []models.DocumentRecord
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	switch len(records) {
	case 0:
		return nil, nil
	case 1:
		return &records[0], nil
	default:
		return nil, appErrors.Clone(appErrors.ErrMultipleRecords, "lookup matched more than one registered document")
	}
}

// IsV3Registered reports whether an opaque pid is in use.
func (r *DocumentRepository) IsV3Registered(ctx context.Context, pid string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM documents WHERE v3 = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, pid); err != nil {
		return false, fmt.Errorf("check v3 in use: %w", err)
	}
	return exists, nil
}

// IsV2Registered reports whether a legacy pid is in use, either as a current
// v2 or as a retained ahead-of-print pid.
func (r *DocumentRepository) IsV2Registered(ctx context.Context, pid string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM documents WHERE v2 = $1 OR aop_pid = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, pid); err != nil {
		return false, fmt.Errorf("check v2 in use: %w", err)
	}
	return exists, nil
}

// AppendVersion stores one immutable xml snapshot for a record.
func (r *DocumentRepository) AppendVersion(ctx context.Context, version *models.XMLVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO xml_versions (id, document_id, content, finger_print, created_at)
	VALUES (:id, :document_id, :content, :finger_print, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("append xml version: %w", err)
	}
	return nil
}

// LatestVersion returns the most recent snapshot for a record, nil when the
// record has no stored xml yet.
func (r *DocumentRepository) LatestVersion(ctx context.Context, documentID string) (*models.XMLVersion, error) {
	const query = `SELECT id, document_id, content, finger_print, created_at
	FROM xml_versions WHERE document_id = $1 ORDER BY created_at DESC LIMIT 1`
	var version models.XMLVersion
	if err := r.db.GetContext(ctx, &version, query, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest xml version: %w", err)
	}
	return &version, nil
}

// ListUnsynchronized returns records not yet acknowledged by the central
// registry, oldest first.
func (r *DocumentRepository) ListUnsynchronized(ctx context.Context, limit int) ([]models.DocumentRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE synchronized = FALSE ORDER BY created_at ASC LIMIT %d`, documentColumns, limit)
	var records []models.DocumentRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list unsynchronized documents: %w", err)
	}
	return records, nil
}

// SetSynchronized flags a record as acknowledged by the central registry.
func (r *DocumentRepository) SetSynchronized(ctx context.Context, id string, registeredInCore bool) error {
	const query = `UPDATE documents SET synchronized = TRUE, registered_in_core = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, registeredInCore, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document synchronized: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document sync rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateV2 rewrites the legacy pid of the record identified by v3.
func (r *DocumentRepository) UpdateV2(ctx context.Context, v3, v2 string) error {
	const query = `UPDATE documents SET v2 = $2, updated_at = $3 WHERE v3 = $1`
	res, err := r.db.ExecContext(ctx, query, v3, v2, time.Now().UTC())
	if err != nil {
		return mapUniqueViolation(err, "update document v2")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document v2 rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func mapUniqueViolation(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return appErrors.Wrap(err, appErrors.ErrUniquenessViolation.Code, appErrors.ErrUniquenessViolation.Status, "pid already registered")
	}
	return fmt.Errorf("%s: %w", op, err)
}
