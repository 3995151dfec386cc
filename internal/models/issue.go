package models

// IssueIdentity places a document inside a journal issue. Uniqueness is on
// (journal, pub_year, volume, number, suppl). Created lazily.
type IssueIdentity struct {
	ID        string  `db:"id" json:"id"`
	JournalID string  `db:"journal_id" json:"journal_id"`
	PubYear   int     `db:"pub_year" json:"pub_year"`
	Volume    *string `db:"volume" json:"volume,omitempty"`
	Number    *string `db:"number" json:"number,omitempty"`
	Suppl     *string `db:"suppl" json:"suppl,omitempty"`
}
