package models

import "time"

// DocumentShape distinguishes the two physical variants of a registered
// document: ahead-of-print (no issue placement) and version-of-record.
type DocumentShape string

const (
	ShapeAheadOfPrint    DocumentShape = "aop"
	ShapeVersionOfRecord DocumentShape = "vor"
)

// RecordStatus values reported to callers.
const (
	RecordStatusCreated = "created"
	RecordStatusUpdated = "updated"
)

// DocumentRecord is one registered document. The fingerprint columns are
// bounded normalized strings, not full text. For an ahead-of-print record the
// pid lives in aop_pid and issue placement is empty; once the document is
// published in an issue the record carries v2 and the issue reference, and
// aop_pid keeps linking back to the ahead-of-print identity.
type DocumentRecord struct {
	ID    string        `db:"id" json:"id"`
	Shape DocumentShape `db:"shape" json:"shape"`

	V3     *string `db:"v3" json:"v3,omitempty"`
	V2     *string `db:"v2" json:"v2,omitempty"`
	AopPid *string `db:"aop_pid" json:"aop_pid,omitempty"`

	JournalID string  `db:"journal_id" json:"journal_id"`
	IssueID   *string `db:"issue_id" json:"issue_id,omitempty"`

	FPage       *string `db:"fpage" json:"fpage,omitempty"`
	FPageSeq    *string `db:"fpage_seq" json:"fpage_seq,omitempty"`
	LPage       *string `db:"lpage" json:"lpage,omitempty"`
	ElocationID *string `db:"elocation_id" json:"elocation_id,omitempty"`

	MainDOI       *string `db:"main_doi" json:"main_doi,omitempty"`
	ArticleTitles *string `db:"article_titles" json:"article_titles,omitempty"`
	Surnames      *string `db:"surnames" json:"surnames,omitempty"`
	Collab        *string `db:"collab" json:"collab,omitempty"`
	Links         *string `db:"links" json:"links,omitempty"`
	PartialBody   *string `db:"partial_body" json:"partial_body,omitempty"`

	PkgName          string     `db:"pkg_name" json:"pkg_name"`
	ArticlePubYear   *int       `db:"article_pub_year" json:"article_pub_year,omitempty"`
	IsPublished      bool       `db:"is_published" json:"is_published"`
	OriginDate       *time.Time `db:"origin_date" json:"origin_date,omitempty"`
	RegisteredInCore bool       `db:"registered_in_core" json:"registered_in_core"`
	Synchronized     bool       `db:"synchronized" json:"synchronized"`

	CreatedBy string     `db:"created_by" json:"created_by"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// IsAOP reports whether the record is on the ahead-of-print track.
func (d *DocumentRecord) IsAOP() bool {
	return d.Shape == ShapeAheadOfPrint
}

// Pid returns the record's current public identifier: v2 for a
// version-of-record, aop_pid for an ahead-of-print.
func (d *DocumentRecord) Pid() string {
	if d.IsAOP() {
		return deref(d.AopPid)
	}
	return deref(d.V2)
}

// XMLVersion is one immutable snapshot of a registered document's content.
// Versions are append-only, at most one latest per record.
type XMLVersion struct {
	ID          string    `db:"id" json:"id"`
	DocumentID  string    `db:"document_id" json:"document_id"`
	Content     []byte    `db:"content" json:"-"`
	FingerPrint string    `db:"finger_print" json:"finger_print"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DocumentFilter is one executable lookup against the registry. Zero-valued
// pointer fields mean "must be NULL"; nil-map semantics are avoided by the
// explicit Has* flags only where the distinction matters.
type DocumentFilter struct {
	Shape DocumentShape

	JournalID string
	IssueID   *string
	ByIssue   bool

	FPage       *string
	FPageSeq    *string
	LPage       *string
	ElocationID *string
	ByPages     bool

	MainDOI       *string
	ArticleTitles *string
	Surnames      *string
	Collab        *string
	Links         *string
	PartialBody   *string
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns a pointer for non-empty values, nil otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
