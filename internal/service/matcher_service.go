package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/scielo-br/pid-provider/internal/models"
	"github.com/scielo-br/pid-provider/internal/xmldoc"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type documentFinder interface {
	QueryOne(ctx context.Context, filter models.DocumentFilter) (*models.DocumentRecord, error)
}

// MatchOutcome is the result of running the lookup plan for one document.
type MatchOutcome struct {
	// Record is the registered document the incoming XML corresponds to,
	// nil when the document is new.
	Record *models.DocumentRecord
	// ForbiddenAOP is set when an ahead-of-print arrives for a document
	// already published in an issue. Record then holds the published row.
	ForbiddenAOP bool
}

// MatcherService locates the registered record an incoming document belongs
// to, honoring the lookup precedence between ahead-of-print and
// version-of-record shapes.
type MatcherService struct {
	documents documentFinder
	logger    *zap.Logger
}

// NewMatcherService constructs the matcher.
func NewMatcherService(documents documentFinder, logger *zap.Logger) *MatcherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatcherService{documents: documents, logger: logger}
}

// fingerprintFilter returns the disambiguation fields of the document. When
// every primary field is empty it falls back to the partial body; a document
// with neither cannot be disambiguated later and is rejected outright.
func fingerprintFilter(doc *xmldoc.Document) (models.DocumentFilter, error) {
	filter := models.DocumentFilter{
		MainDOI:       models.StringPtr(xmldoc.Normalize(doc.MainDOI())),
		ArticleTitles: models.StringPtr(doc.ArticleTitles()),
		Surnames:      models.StringPtr(doc.Surnames()),
		Collab:        models.StringPtr(doc.Collab()),
		Links:         models.StringPtr(doc.Links()),
	}
	if filter.MainDOI != nil || filter.ArticleTitles != nil || filter.Surnames != nil ||
		filter.Collab != nil || filter.Links != nil {
		return filter, nil
	}
	if body := doc.PartialBody(); body != "" {
		return models.DocumentFilter{PartialBody: &body}, nil
	}
	return models.DocumentFilter{}, appErrors.Clone(appErrors.ErrNotEnoughParameters,
		"document has no doi, titles, surnames, collab, links or body to disambiguate it")
}

// Match runs the lookup plan. journalID is always required; issueID carries
// the resolved issue for a version-of-record document.
func (s *MatcherService) Match(ctx context.Context, doc *xmldoc.Document, journalID string, issueID *string) (*MatchOutcome, error) {
	base, err := fingerprintFilter(doc)
	if err != nil {
		return nil, err
	}
	base.JournalID = journalID

	if doc.IsAOP() {
		return s.matchAOP(ctx, doc, base)
	}
	return s.matchVoR(ctx, doc, base, issueID)
}

// matchAOP first probes for an already published version of the same content,
// deliberately ignoring issue placement. A hit there is a forbidden
// transition, not a match to update.
func (s *MatcherService) matchAOP(ctx context.Context, doc *xmldoc.Document, base models.DocumentFilter) (*MatchOutcome, error) {
	published := base
	published.Shape = models.ShapeVersionOfRecord
	record, err := s.documents.QueryOne(ctx, published)
	if err != nil {
		return nil, err
	}
	if record != nil {
		s.logger.Warn("ahead-of-print received for published document",
			zap.String("pkg_name", doc.Filename()),
			zap.String("matched_id", record.ID))
		return &MatchOutcome{Record: record, ForbiddenAOP: true}, nil
	}

	aop := base
	aop.Shape = models.ShapeAheadOfPrint
	record, err = s.documents.QueryOne(ctx, aop)
	if err != nil {
		return nil, err
	}
	return &MatchOutcome{Record: record}, nil
}

// matchVoR looks for the same version-of-record in the same issue and pages,
// then falls back to an ahead-of-print candidate now being published.
func (s *MatcherService) matchVoR(ctx context.Context, doc *xmldoc.Document, base models.DocumentFilter, issueID *string) (*MatchOutcome, error) {
	vor := base
	vor.Shape = models.ShapeVersionOfRecord
	vor.ByIssue = true
	vor.IssueID = issueID
	vor.ByPages = true
	vor.FPage = models.StringPtr(doc.FPage())
	vor.FPageSeq = models.StringPtr(doc.FPageSeq())
	vor.LPage = models.StringPtr(doc.LPage())
	vor.ElocationID = models.StringPtr(doc.ElocationID())

	record, err := s.documents.QueryOne(ctx, vor)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return &MatchOutcome{Record: record}, nil
	}

	aop := base
	aop.Shape = models.ShapeAheadOfPrint
	record, err = s.documents.QueryOne(ctx, aop)
	if err != nil {
		return nil, err
	}
	return &MatchOutcome{Record: record}, nil
}
