package dto

import (
	"time"

	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

// RegistrationResult is the outcome of one registration attempt. Downstream
// consumers key on this exact shape, so fields are never repurposed.
type RegistrationResult struct {
	Filename string `json:"filename,omitempty"`

	V3     string `json:"v3,omitempty"`
	V2     string `json:"v2,omitempty"`
	AopPid string `json:"aop_pid,omitempty"`

	Created      bool   `json:"created"`
	Updated      bool   `json:"updated"`
	XMLChanged   bool   `json:"xml_changed"`
	RecordStatus string `json:"record_status,omitempty"`

	RegisteredInCore bool `json:"registered_in_core"`
	Synchronized     bool `json:"synchronized"`

	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Failed reports whether the attempt ended in an error.
func (r *RegistrationResult) Failed() bool { return r.ErrorType != "" }

// FailureResult builds a per-item error result so batch flows never abort on
// one bad entry.
func FailureResult(filename string, err error) RegistrationResult {
	typed := appErrors.FromError(err)
	return RegistrationResult{
		Filename:     filename,
		ErrorType:    typed.Code,
		ErrorMessage: typed.Error(),
	}
}

// RegisterOptions tunes one registration attempt.
type RegisterOptions struct {
	// Username of the account performing the registration.
	Username string
	// IsPublished marks the document as visible on the website.
	IsPublished bool
	// ForceUpdate appends a new version even when the fingerprint is
	// unchanged.
	ForceUpdate bool
	// SkipRemote keeps the registration local-only regardless of remote
	// configuration.
	SkipRemote bool
	// ApplyXMLChanges lets remote pid corrections overwrite local values
	// unconditionally instead of only when the remote record is older.
	ApplyXMLChanges bool
	// OriginDate is the document's date in the submitting system, kept on
	// the record for migration provenance.
	OriginDate *time.Time
	// RegisteredInCore seeds the central-registration flag, used when the
	// submission originates from the central authority itself.
	RegisteredInCore bool
	// AutoSolvePidConflict lets the engine replace a used XML-embedded pid
	// with a generated one; when false the conflict is surfaced for manual
	// remediation instead.
	AutoSolvePidConflict bool
}
