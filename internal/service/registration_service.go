package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scielo-br/pid-provider/internal/dto"
	"github.com/scielo-br/pid-provider/internal/models"
	"github.com/scielo-br/pid-provider/internal/xmldoc"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type journalStore interface {
	Find(ctx context.Context, issnElectronic, issnPrint *string) (*models.JournalIdentity, error)
	GetOrCreate(ctx context.Context, issnElectronic, issnPrint *string) (*models.JournalIdentity, error)
}

type issueStore interface {
	Find(ctx context.Context, issue models.IssueIdentity) (*models.IssueIdentity, error)
	GetOrCreate(ctx context.Context, issue models.IssueIdentity) (*models.IssueIdentity, error)
}

type documentStore interface {
	Create(ctx context.Context, record *models.DocumentRecord) error
	Update(ctx context.Context, record *models.DocumentRecord) error
	IsV3Registered(ctx context.Context, pid string) (bool, error)
	IsV2Registered(ctx context.Context, pid string) (bool, error)
	AppendVersion(ctx context.Context, version *models.XMLVersion) error
	LatestVersion(ctx context.Context, documentID string) (*models.XMLVersion, error)
}

type documentMatcher interface {
	Match(ctx context.Context, doc *xmldoc.Document, journalID string, issueID *string) (*MatchOutcome, error)
}

// synchronizer pushes a freshly reconciled document to the central registry.
// A nil synchronizer means local-only operation.
type synchronizer interface {
	Synchronize(ctx context.Context, record *models.DocumentRecord, doc *xmldoc.Document, opts dto.RegisterOptions) SyncOutcome
}

// RegistrationService reconciles incoming XML documents against the local
// registry: matching, identifier assignment, version bookkeeping and the
// hand-off to central synchronization.
type RegistrationService struct {
	journals  journalStore
	issues    issueStore
	documents documentStore
	matcher   documentMatcher
	generator *PidGenerator
	sync      synchronizer

	storeRetries int
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewRegistrationService constructs the engine. sync may be nil for
// local-only deployments; storeRetries caps how often a create is replayed
// with fresh pids after a storage-level uniqueness rejection.
func NewRegistrationService(
	journals journalStore,
	issues issueStore,
	documents documentStore,
	matcher documentMatcher,
	generator *PidGenerator,
	sync synchronizer,
	storeRetries int,
	metrics *MetricsService,
	logger *zap.Logger,
) *RegistrationService {
	if storeRetries <= 0 {
		storeRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		journals:     journals,
		issues:       issues,
		documents:    documents,
		matcher:      matcher,
		generator:    generator,
		sync:         sync,
		storeRetries: storeRetries,
		metrics:      metrics,
		logger:       logger,
	}
}

// Register reconciles one document and returns the identifier set assigned to
// it. The document tree is mutated so that serializing it afterwards carries
// the assigned pids.
func (s *RegistrationService) Register(ctx context.Context, doc *xmldoc.Document, opts dto.RegisterOptions) (dto.RegistrationResult, error) {
	result, err := s.register(ctx, doc, opts)
	if err != nil {
		s.metrics.ObserveRegistration(appErrors.FromError(err).Code)
	} else {
		s.metrics.ObserveRegistration(result.RecordStatus)
	}
	return result, err
}

func (s *RegistrationService) register(ctx context.Context, doc *xmldoc.Document, opts dto.RegisterOptions) (dto.RegistrationResult, error) {
	journal, issueID, err := s.resolvePlacement(ctx, doc, true)
	if err != nil {
		return dto.RegistrationResult{}, err
	}

	outcome, err := s.matcher.Match(ctx, doc, journal.ID, issueID)
	if err != nil {
		return dto.RegistrationResult{}, err
	}
	if outcome.ForbiddenAOP {
		return dto.RegistrationResult{}, appErrors.Clone(appErrors.ErrForbiddenAOP, "")
	}

	var result dto.RegistrationResult
	var record *models.DocumentRecord
	if outcome.Record == nil {
		record, result, err = s.createRecord(ctx, doc, journal, issueID, opts)
	} else {
		record, result, err = s.updateRecord(ctx, doc, journal, issueID, outcome.Record, opts)
	}
	if err != nil {
		return dto.RegistrationResult{}, err
	}

	if s.sync != nil && !opts.SkipRemote {
		sync := s.sync.Synchronize(ctx, record, doc, opts)
		result.RegisteredInCore = sync.RegisteredInCore
		result.Synchronized = sync.Synchronized
		if sync.V2Corrected != "" {
			result.V2 = sync.V2Corrected
		}
	}
	return result, nil
}

// IsRegistered reports the identifier set the document already has, without
// writing anything. A nil result means the document is unknown.
func (s *RegistrationService) IsRegistered(ctx context.Context, doc *xmldoc.Document) (*dto.RegistrationResult, error) {
	journal, issueID, err := s.resolvePlacement(ctx, doc, false)
	if err != nil {
		return nil, err
	}
	if journal == nil {
		return nil, nil
	}

	outcome, err := s.matcher.Match(ctx, doc, journal.ID, issueID)
	if err != nil {
		return nil, err
	}
	if outcome.Record == nil {
		return nil, nil
	}
	record := outcome.Record
	result := resultFromRecord(record, doc.Filename())
	if outcome.ForbiddenAOP {
		result.ErrorType = appErrors.ErrForbiddenAOP.Code
		result.ErrorMessage = appErrors.ErrForbiddenAOP.Message
	}
	return &result, nil
}

// resolvePlacement maps the document's ISSNs and issue markers onto registry
// identities. With create=false missing identities short-circuit to nil
// instead of being written.
func (s *RegistrationService) resolvePlacement(ctx context.Context, doc *xmldoc.Document, create bool) (*models.JournalIdentity, *string, error) {
	issnE := models.StringPtr(doc.ISSNElectronic())
	issnP := models.StringPtr(doc.ISSNPrint())
	if issnE == nil && issnP == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotEnoughParameters, "document carries no journal ISSN")
	}
	if doc.PubYear() == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrNotEnoughParameters, "document carries no publication year")
	}

	var journal *models.JournalIdentity
	var err error
	if create {
		journal, err = s.journals.GetOrCreate(ctx, issnE, issnP)
	} else {
		journal, err = s.journals.Find(ctx, issnE, issnP)
	}
	if err != nil {
		return nil, nil, err
	}
	if journal == nil {
		return nil, nil, nil
	}

	if doc.IsAOP() {
		return journal, nil, nil
	}

	identity := models.IssueIdentity{
		JournalID: journal.ID,
		PubYear:   doc.PubYear(),
		Volume:    models.StringPtr(doc.Volume()),
		Number:    models.StringPtr(doc.Number()),
		Suppl:     models.StringPtr(doc.Suppl()),
	}
	var issue *models.IssueIdentity
	if create {
		issue, err = s.issues.GetOrCreate(ctx, identity)
	} else {
		issue, err = s.issues.Find(ctx, identity)
	}
	if err != nil {
		return nil, nil, err
	}
	if issue == nil {
		return journal, nil, nil
	}
	return journal, &issue.ID, nil
}

// createRecord handles a document seen for the first time.
func (s *RegistrationService) createRecord(ctx context.Context, doc *xmldoc.Document, journal *models.JournalIdentity, issueID *string, opts dto.RegisterOptions) (*models.DocumentRecord, dto.RegistrationResult, error) {
	record := s.recordFromDocument(doc, journal, issueID, opts)

	var stored bool
	for attempt := 0; attempt <= s.storeRetries && !stored; attempt++ {
		regenerate := attempt > 0
		if regenerate {
			// Nothing was persisted; the rejected identifiers are losers of a
			// check-then-use race and must not be replayed.
			record.V3 = nil
			record.V2 = nil
			record.AopPid = nil
		}
		if err := s.assignPids(ctx, doc, journal, record, regenerate, opts); err != nil {
			return nil, dto.RegistrationResult{}, err
		}
		err := s.documents.Create(ctx, record)
		if err == nil {
			stored = true
			break
		}
		if !appErrors.Is(err, appErrors.ErrUniquenessViolation.Code) {
			return nil, dto.RegistrationResult{}, err
		}
		// Lost a check-then-use race; regenerate and replay.
		s.logger.Warn("pid uniqueness rejected by storage, regenerating",
			zap.String("pkg_name", record.PkgName),
			zap.Int("attempt", attempt+1))
	}
	if !stored {
		return nil, dto.RegistrationResult{}, appErrors.Clone(appErrors.ErrPidSpaceExhausted, "storage kept rejecting generated pids")
	}

	if err := s.appendVersion(ctx, record, doc); err != nil {
		return nil, dto.RegistrationResult{}, err
	}

	result := resultFromRecord(record, doc.Filename())
	result.Created = true
	result.XMLChanged = true
	result.RecordStatus = models.RecordStatusCreated
	return record, result, nil
}

// updateRecord handles a match: same-shape refresh or the promotion of an
// ahead-of-print to its version-of-record.
func (s *RegistrationService) updateRecord(ctx context.Context, doc *xmldoc.Document, journal *models.JournalIdentity, issueID *string, record *models.DocumentRecord, opts dto.RegisterOptions) (*models.DocumentRecord, dto.RegistrationResult, error) {
	promotion := !doc.IsAOP() && record.IsAOP()
	if promotion {
		// The ahead-of-print pid becomes the legacy pid of the published
		// record, keeping both identifiers resolvable.
		record.Shape = models.ShapeVersionOfRecord
		record.V2 = record.AopPid
	}

	// Identifiers read from the persisted row are immutable here; only values
	// backfilled during this registration may be redrawn after a storage
	// uniqueness rejection.
	hadV3 := record.V3 != nil && *record.V3 != ""
	hadV2 := record.V2 != nil && *record.V2 != ""
	hadAopPid := record.AopPid != nil && *record.AopPid != ""
	canRedraw := !hadV3 || (record.IsAOP() && !hadAopPid) || (!record.IsAOP() && !hadV2)

	if err := s.assignPids(ctx, doc, journal, record, false, opts); err != nil {
		return nil, dto.RegistrationResult{}, err
	}

	latest, err := s.documents.LatestVersion(ctx, record.ID)
	if err != nil {
		return nil, dto.RegistrationResult{}, err
	}
	xmlChanged := latest == nil || latest.FingerPrint != doc.FingerPrint() || opts.ForceUpdate

	if xmlChanged || promotion {
		s.refreshRecord(record, doc, issueID, opts)
	}
	// Provenance updates apply even when the XML itself did not change.
	if opts.OriginDate != nil {
		record.OriginDate = opts.OriginDate
	}
	if opts.RegisteredInCore {
		record.RegisteredInCore = true
	}

	var stored bool
	for attempt := 0; attempt <= s.storeRetries && !stored; attempt++ {
		err := s.documents.Update(ctx, record)
		if err == nil {
			stored = true
			break
		}
		if !appErrors.Is(err, appErrors.ErrUniquenessViolation.Code) || !canRedraw {
			return nil, dto.RegistrationResult{}, err
		}
		if !hadV3 {
			record.V3 = nil
		}
		if !hadV2 {
			record.V2 = nil
		}
		if !hadAopPid {
			record.AopPid = nil
		}
		if err := s.assignPids(ctx, doc, journal, record, true, opts); err != nil {
			return nil, dto.RegistrationResult{}, err
		}
		// The redrawn identifiers changed the serialized tree.
		xmlChanged = true
		s.logger.Warn("backfilled pid rejected by storage, regenerating",
			zap.String("pkg_name", record.PkgName),
			zap.Int("attempt", attempt+1))
	}
	if !stored {
		return nil, dto.RegistrationResult{}, appErrors.Clone(appErrors.ErrPidSpaceExhausted, "storage kept rejecting backfilled pids")
	}
	if xmlChanged {
		if err := s.appendVersion(ctx, record, doc); err != nil {
			return nil, dto.RegistrationResult{}, err
		}
	}

	result := resultFromRecord(record, doc.Filename())
	result.Updated = true
	result.XMLChanged = xmlChanged
	result.RecordStatus = models.RecordStatusUpdated
	return record, result, nil
}

// assignPids settles the three identifiers on the record, preferring in
// order: the already registered value, a valid unused value embedded in the
// XML, a freshly generated one. The XML tree is rewritten to carry the final
// values. regenerate discards XML-embedded candidates after a storage
// uniqueness rejection; without AutoSolvePidConflict a used XML-embedded pid
// is an error instead of being silently replaced.
func (s *RegistrationService) assignPids(ctx context.Context, doc *xmldoc.Document, journal *models.JournalIdentity, record *models.DocumentRecord, regenerate bool, opts dto.RegisterOptions) error {
	v3, err := s.settleV3(ctx, record.V3, doc.V3(), regenerate, opts.AutoSolvePidConflict)
	if err != nil {
		return err
	}
	record.V3 = &v3
	doc.SetV3(v3)

	if record.IsAOP() {
		pid, err := s.settleV2(ctx, record.AopPid, doc.AopPid(), journal, regenerate, opts.AutoSolvePidConflict)
		if err != nil {
			return err
		}
		record.AopPid = &pid
		doc.SetAopPid(pid)
		return nil
	}

	v2, err := s.settleV2(ctx, record.V2, doc.V2(), journal, regenerate, opts.AutoSolvePidConflict)
	if err != nil {
		return err
	}
	record.V2 = &v2
	doc.SetV2(v2)

	// A promoted record keeps its ahead-of-print pid; otherwise the value
	// embedded in the XML is preserved as the link to the former
	// ahead-of-print identity.
	if record.AopPid == nil {
		record.AopPid = models.StringPtr(doc.AopPid())
	}
	if record.AopPid != nil {
		doc.SetAopPid(*record.AopPid)
	}
	return nil
}

func (s *RegistrationService) settleV3(ctx context.Context, registered *string, fromXML string, regenerate, autoSolve bool) (string, error) {
	if registered != nil && *registered != "" {
		return *registered, nil
	}
	if !regenerate && IsValidV3(fromXML) {
		used, err := s.documents.IsV3Registered(ctx, fromXML)
		if err != nil {
			return "", err
		}
		if !used {
			return fromXML, nil
		}
		if !autoSolve {
			return "", appErrors.Clone(appErrors.ErrUniquenessViolation,
				fmt.Sprintf("v3 %s already belongs to another document", fromXML))
		}
	}
	return s.generator.UniqueV3(ctx, s.documents.IsV3Registered)
}

func (s *RegistrationService) settleV2(ctx context.Context, registered *string, fromXML string, journal *models.JournalIdentity, regenerate, autoSolve bool) (string, error) {
	if registered != nil && *registered != "" {
		return *registered, nil
	}
	if !regenerate && IsValidV2(fromXML) {
		used, err := s.documents.IsV2Registered(ctx, fromXML)
		if err != nil {
			return "", err
		}
		if !used {
			return fromXML, nil
		}
		if !autoSolve {
			return "", appErrors.Clone(appErrors.ErrUniquenessViolation,
				fmt.Sprintf("v2 %s already belongs to another document", fromXML))
		}
	}
	return s.generator.UniqueV2(ctx, journal.AnyISSN(), time.Now().UTC(), s.documents.IsV2Registered)
}

func (s *RegistrationService) recordFromDocument(doc *xmldoc.Document, journal *models.JournalIdentity, issueID *string, opts dto.RegisterOptions) *models.DocumentRecord {
	shape := models.ShapeVersionOfRecord
	if doc.IsAOP() {
		shape = models.ShapeAheadOfPrint
	}
	record := &models.DocumentRecord{
		Shape:     shape,
		JournalID: journal.ID,
		CreatedBy: opts.Username,
	}
	s.refreshRecord(record, doc, issueID, opts)
	return record
}

// refreshRecord rewrites the content-derived columns from the current XML.
func (s *RegistrationService) refreshRecord(record *models.DocumentRecord, doc *xmldoc.Document, issueID *string, opts dto.RegisterOptions) {
	record.IssueID = issueID
	record.FPage = models.StringPtr(doc.FPage())
	record.FPageSeq = models.StringPtr(doc.FPageSeq())
	record.LPage = models.StringPtr(doc.LPage())
	record.ElocationID = models.StringPtr(doc.ElocationID())
	record.MainDOI = models.StringPtr(xmldoc.Normalize(doc.MainDOI()))
	record.ArticleTitles = models.StringPtr(doc.ArticleTitles())
	record.Surnames = models.StringPtr(doc.Surnames())
	record.Collab = models.StringPtr(doc.Collab())
	record.Links = models.StringPtr(doc.Links())
	record.PartialBody = models.StringPtr(doc.PartialBody())
	record.PkgName = doc.Filename()
	record.IsPublished = opts.IsPublished
	if opts.OriginDate != nil {
		record.OriginDate = opts.OriginDate
	}
	// The core flag is sticky; a submission can assert central registration
	// but never retract it.
	if opts.RegisteredInCore {
		record.RegisteredInCore = true
	}
	if year := doc.PubYear(); year > 0 {
		record.ArticlePubYear = &year
	}
}

func (s *RegistrationService) appendVersion(ctx context.Context, record *models.DocumentRecord, doc *xmldoc.Document) error {
	content, err := doc.Bytes()
	if err != nil {
		return err
	}
	return s.documents.AppendVersion(ctx, &models.XMLVersion{
		DocumentID:  record.ID,
		Content:     content,
		FingerPrint: doc.FingerPrint(),
	})
}

func resultFromRecord(record *models.DocumentRecord, filename string) dto.RegistrationResult {
	result := dto.RegistrationResult{
		Filename:         filename,
		RegisteredInCore: record.RegisteredInCore,
		Synchronized:     record.Synchronized,
	}
	if record.V3 != nil {
		result.V3 = *record.V3
	}
	if record.V2 != nil {
		result.V2 = *record.V2
	}
	if record.AopPid != nil {
		result.AopPid = *record.AopPid
	}
	return result
}
