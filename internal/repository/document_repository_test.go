package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/scielo-br/pid-provider/internal/models"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func documentRows(records ...*models.DocumentRecord) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "shape", "v3", "v2", "aop_pid", "journal_id", "issue_id",
		"fpage", "fpage_seq", "lpage", "elocation_id",
		"main_doi", "article_titles", "surnames", "collab", "links", "partial_body",
		"pkg_name", "article_pub_year", "is_published", "origin_date", "registered_in_core", "synchronized",
		"created_by", "created_at", "updated_at",
	})
	for _, r := range records {
		rows.AddRow(r.ID, r.Shape, r.V3, r.V2, r.AopPid, r.JournalID, r.IssueID,
			r.FPage, r.FPageSeq, r.LPage, r.ElocationID,
			r.MainDOI, r.ArticleTitles, r.Surnames, r.Collab, r.Links, r.PartialBody,
			r.PkgName, r.ArticlePubYear, r.IsPublished, r.OriginDate, r.RegisteredInCore, r.Synchronized,
			r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	}
	return rows
}

func sampleRecord(id string) *models.DocumentRecord {
	return &models.DocumentRecord{
		ID:        id,
		Shape:     models.ShapeVersionOfRecord,
		V3:        models.StringPtr("TPg77CCrGj4wcbLCh9vG8bS"),
		V2:        models.StringPtr("S1806-37132022000201100"),
		JournalID: "journal-1",
		IssueID:   models.StringPtr("issue-1"),
		PkgName:   "1100.xml",
		CreatedBy: "requester",
		CreatedAt: time.Now().UTC(),
	}
}

func TestDocumentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := sampleRecord("")
	record.ID = ""
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryCreateUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_v3_key"})

	err := repo.Create(context.Background(), sampleRecord("doc-1"))
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrUniquenessViolation.Code))
}

func TestDocumentRepositoryGetByV3(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	record := sampleRecord("doc-1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, shape, v3, v2, aop_pid")).
		WithArgs(*record.V3).
		WillReturnRows(documentRows(record))

	found, err := repo.GetByV3(context.Background(), *record.V3)
	require.NoError(t, err)
	require.Equal(t, "doc-1", found.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, shape, v3, v2, aop_pid")).
		WithArgs("missing").
		WillReturnRows(documentRows())
	found, err = repo.GetByV3(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryQueryOne(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	t.Run("single match with null issue and skipped nil fields", func(t *testing.T) {
		record := sampleRecord("doc-1")
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, shape, v3, v2, aop_pid")).
			WithArgs("aop", "journal-1", "10.1590/x").
			WillReturnRows(documentRows(record))

		found, err := repo.QueryOne(context.Background(), models.DocumentFilter{
			Shape:     models.ShapeAheadOfPrint,
			JournalID: "journal-1",
			ByIssue:   true, // nil IssueID becomes issue_id IS NULL, no bind arg
			MainDOI:   models.StringPtr("10.1590/x"),
		})
		require.NoError(t, err)
		require.Equal(t, "doc-1", found.ID)
	})

	t.Run("no match", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, shape, v3, v2, aop_pid")).
			WithArgs("journal-1", "SILVA|SOUZA").
			WillReturnRows(documentRows())

		found, err := repo.QueryOne(context.Background(), models.DocumentFilter{
			JournalID: "journal-1",
			Surnames:  models.StringPtr("SILVA|SOUZA"),
		})
		require.NoError(t, err)
		require.Nil(t, found)
	})

	t.Run("ambiguous", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, shape, v3, v2, aop_pid")).
			WithArgs("journal-1").
			WillReturnRows(documentRows(sampleRecord("doc-1"), sampleRecord("doc-2")))

		_, err := repo.QueryOne(context.Background(), models.DocumentFilter{JournalID: "journal-1"})
		require.Error(t, err)
		require.True(t, appErrors.Is(err, appErrors.ErrMultipleRecords.Code))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryPidChecks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM documents WHERE v3 = $1)")).
		WithArgs("TPg77CCrGj4wcbLCh9vG8bS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	used, err := repo.IsV3Registered(context.Background(), "TPg77CCrGj4wcbLCh9vG8bS")
	require.NoError(t, err)
	require.True(t, used)

	// Legacy check covers both the v2 column and retained aop pids.
	mock.ExpectQuery(regexp.QuoteMeta("WHERE v2 = $1 OR aop_pid = $1")).
		WithArgs("S1806-37132022005000002").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	used, err = repo.IsV2Registered(context.Background(), "S1806-37132022005000002")
	require.NoError(t, err)
	require.False(t, used)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryVersions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO xml_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	version := &models.XMLVersion{DocumentID: "doc-1", Content: []byte("<article/>"), FingerPrint: "abc"}
	require.NoError(t, repo.AppendVersion(context.Background(), version))
	require.NotEmpty(t, version.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM xml_versions WHERE document_id = $1")).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "content", "finger_print", "created_at"}).
			AddRow(version.ID, "doc-1", []byte("<article/>"), "abc", time.Now()))
	latest, err := repo.LatestVersion(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Equal(t, "abc", latest.FingerPrint)

	mock.ExpectQuery(regexp.QuoteMeta("FROM xml_versions WHERE document_id = $1")).
		WithArgs("doc-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "content", "finger_print", "created_at"}))
	latest, err = repo.LatestVersion(context.Background(), "doc-2")
	require.NoError(t, err)
	require.Nil(t, latest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositorySynchronization(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE synchronized = FALSE")).
		WillReturnRows(documentRows(sampleRecord("doc-1")))
	records, err := repo.ListUnsynchronized(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET synchronized = TRUE")).
		WithArgs("doc-1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetSynchronized(context.Background(), "doc-1", true))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET synchronized = TRUE")).
		WithArgs("missing", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.Error(t, repo.SetSynchronized(context.Background(), "missing", false))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryUpdateV2(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET v2 = $2")).
		WithArgs("TPg77CCrGj4wcbLCh9vG8bS", "S1806-37132022000201199", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateV2(context.Background(), "TPg77CCrGj4wcbLCh9vG8bS", "S1806-37132022000201199"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET v2 = $2")).
		WithArgs("missing", "S1806-37132022000201199", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.Error(t, repo.UpdateV2(context.Background(), "missing", "S1806-37132022000201199"))
	require.NoError(t, mock.ExpectationsWereMet())
}
