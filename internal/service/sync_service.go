package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scielo-br/pid-provider/internal/dto"
	"github.com/scielo-br/pid-provider/internal/models"
	"github.com/scielo-br/pid-provider/internal/remote"
	"github.com/scielo-br/pid-provider/internal/xmldoc"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type remoteRegistrar interface {
	Enabled() bool
	Register(ctx context.Context, filename string, xmlData []byte) (*remote.Result, error)
}

type syncDocumentStore interface {
	Update(ctx context.Context, record *models.DocumentRecord) error
	SetSynchronized(ctx context.Context, id string, registeredInCore bool) error
	ListUnsynchronized(ctx context.Context, limit int) ([]models.DocumentRecord, error)
	LatestVersion(ctx context.Context, documentID string) (*models.XMLVersion, error)
}

type pidRequestStore interface {
	Create(ctx context.Context, request *models.PidRequest) error
	MarkResolved(ctx context.Context, documentID string) error
}

// SyncOutcome reports what central synchronization did for one document.
type SyncOutcome struct {
	RegisteredInCore bool
	Synchronized     bool
	// V2Corrected carries the authority's legacy pid when it overruled the
	// locally assigned one.
	V2Corrected string
}

// SyncService pushes reconciled documents to the central pid authority and
// keeps the append-only attempt trail. A failed push never fails the local
// registration; the document simply stays flagged for a later retry.
type SyncService struct {
	client    remoteRegistrar
	documents syncDocumentStore
	requests  pidRequestStore
	batchSize int
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewSyncService constructs the service.
func NewSyncService(client remoteRegistrar, documents syncDocumentStore, requests pidRequestStore, batchSize int, metrics *MetricsService, logger *zap.Logger) *SyncService {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		client:    client,
		documents: documents,
		requests:  requests,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
	}
}

// Synchronize submits one document to the authority. When the authority is
// not configured the registration stays local-only, which is an accepted
// degraded mode rather than a failure.
func (s *SyncService) Synchronize(ctx context.Context, record *models.DocumentRecord, doc *xmldoc.Document, opts dto.RegisterOptions) SyncOutcome {
	if s.client == nil || !s.client.Enabled() {
		s.logger.Debug("pid authority not configured, keeping registration local",
			zap.String("pkg_name", record.PkgName))
		return SyncOutcome{}
	}

	xmlData, err := doc.Bytes()
	if err != nil {
		s.recordAttempt(ctx, record, opts.Username, err)
		return SyncOutcome{}
	}

	start := time.Now()
	result, err := s.client.Register(ctx, record.PkgName, xmlData)
	if err != nil {
		s.metrics.ObserveRemoteCall("error", time.Since(start))
		s.logger.Warn("central registration failed, document stays pending",
			zap.String("pkg_name", record.PkgName),
			zap.Error(err))
		s.recordAttempt(ctx, record, opts.Username, err)
		return SyncOutcome{}
	}

	s.metrics.ObserveRemoteCall("success", time.Since(start))

	outcome := SyncOutcome{RegisteredInCore: true, Synchronized: true}
	outcome.V2Corrected = s.applyCorrections(ctx, record, doc, result, opts)

	if err := s.documents.SetSynchronized(ctx, record.ID, true); err != nil {
		s.logger.Error("unable to flag document as synchronized", zap.Error(err))
	}
	record.Synchronized = true
	record.RegisteredInCore = true
	s.recordAttempt(ctx, record, opts.Username, nil)
	if err := s.requests.MarkResolved(ctx, record.ID); err != nil {
		s.logger.Error("unable to resolve earlier sync failures", zap.Error(err))
	}
	return outcome
}

// applyCorrections folds the authority's pid corrections back into the local
// record. They are applied only when the caller asked for it or when the
// authority's record predates the local one: the side that created the record
// first keeps its identifiers, anything else would make pids flap between
// deployments.
func (s *SyncService) applyCorrections(ctx context.Context, record *models.DocumentRecord, doc *xmldoc.Document, result *remote.Result, opts dto.RegisterOptions) string {
	if len(result.XMLChanged) == 0 {
		return ""
	}
	remoteWins := opts.ApplyXMLChanges || (!result.Created.IsZero() && result.Created.Before(record.CreatedAt))
	if !remoteWins {
		s.logger.Info("ignoring remote pid corrections, local record is older",
			zap.String("pkg_name", record.PkgName))
		return ""
	}

	var correctedV2 string
	for pidType, value := range result.XMLChanged {
		if value == "" {
			continue
		}
		pid := value
		switch pidType {
		case "pid_v2":
			record.V2 = &pid
			doc.SetV2(pid)
			correctedV2 = pid
		case "pid_v3":
			record.V3 = &pid
			doc.SetV3(pid)
		case "aop_pid":
			record.AopPid = &pid
			doc.SetAopPid(pid)
		default:
			s.logger.Warn("unknown pid correction type", zap.String("pid_type", pidType))
		}
	}
	if err := s.documents.Update(ctx, record); err != nil {
		s.logger.Error("unable to persist remote pid corrections", zap.Error(err))
		return ""
	}
	return correctedV2
}

// SynchronizePending replays documents the authority has not acknowledged
// yet, oldest first. Returns how many were pushed successfully.
func (s *SyncService) SynchronizePending(ctx context.Context, username string) (int, error) {
	if s.client == nil || !s.client.Enabled() {
		return 0, appErrors.Clone(appErrors.ErrRemoteNotConfigured, "")
	}

	pending, err := s.documents.ListUnsynchronized(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	synced := 0
	for i := range pending {
		record := &pending[i]
		version, err := s.documents.LatestVersion(ctx, record.ID)
		if err != nil || version == nil {
			s.logger.Warn("pending document has no stored xml", zap.String("id", record.ID))
			continue
		}
		doc, err := xmldoc.Parse(version.Content, record.PkgName)
		if err != nil {
			s.logger.Warn("pending document xml is unreadable", zap.String("id", record.ID), zap.Error(err))
			continue
		}
		outcome := s.Synchronize(ctx, record, doc, dto.RegisterOptions{Username: username})
		if outcome.Synchronized {
			synced++
		}
	}
	return synced, nil
}

func (s *SyncService) recordAttempt(ctx context.Context, record *models.DocumentRecord, username string, cause error) {
	request := &models.PidRequest{
		DocumentID: &record.ID,
		Origin:     record.PkgName,
		Status:     models.PidRequestStatusSuccess,
		CreatedBy:  username,
	}
	if cause != nil {
		typed := appErrors.FromError(cause)
		request.Status = models.PidRequestStatusError
		request.ErrorType = &typed.Code
		request.ErrorMsg = models.StringPtr(typed.Error())
	}
	if err := s.requests.Create(ctx, request); err != nil {
		s.logger.Error("unable to append pid request trail", zap.Error(err))
	}
}
