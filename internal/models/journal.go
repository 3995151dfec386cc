package models

// JournalIdentity identifies a journal by its ISSN pair. At least one ISSN is
// required; the pair is unique. Rows are created lazily on first reference and
// never deleted by the registration flow.
type JournalIdentity struct {
	ID             string  `db:"id" json:"id"`
	ISSNElectronic *string `db:"issn_electronic" json:"issn_electronic,omitempty"`
	ISSNPrint      *string `db:"issn_print" json:"issn_print,omitempty"`
}

// AnyISSN returns the electronic ISSN when present, otherwise the print ISSN.
func (j *JournalIdentity) AnyISSN() string {
	if j.ISSNElectronic != nil && *j.ISSNElectronic != "" {
		return *j.ISSNElectronic
	}
	if j.ISSNPrint != nil {
		return *j.ISSNPrint
	}
	return ""
}
