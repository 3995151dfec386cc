package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/scielo-br/pid-provider/internal/models"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type fixPidStore interface {
	GetByV3(ctx context.Context, v3 string) (*models.DocumentRecord, error)
	IsV2Registered(ctx context.Context, pid string) (bool, error)
	UpdateV2(ctx context.Context, v3, v2 string) error
}

type remoteFixer interface {
	Enabled() bool
	FixPidV2(ctx context.Context, pidV3, correctPidV2 string) error
}

// FixPidService corrects a wrongly assigned legacy pid on a known document,
// locally and, when configured, at the central authority. Used for manual
// remediation, independent of document ingestion.
type FixPidService struct {
	documents fixPidStore
	client    remoteFixer
	logger    *zap.Logger
}

// NewFixPidService constructs the service. client may be nil for local-only
// deployments.
func NewFixPidService(documents fixPidStore, client remoteFixer, logger *zap.Logger) *FixPidService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FixPidService{documents: documents, client: client, logger: logger}
}

// FixPidV2 rewrites the legacy pid of the document identified by v3.
func (s *FixPidService) FixPidV2(ctx context.Context, pidV3, correctPidV2 string) error {
	if !IsValidV3(pidV3) {
		return appErrors.Clone(appErrors.ErrValidation, "pid_v3 is not a well-formed v3 pid")
	}
	if !IsValidV2(correctPidV2) {
		return appErrors.Clone(appErrors.ErrValidation, "correct_pid_v2 is not a well-formed v2 pid")
	}

	record, err := s.documents.GetByV3(ctx, pidV3)
	if err != nil {
		return err
	}
	if record == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "no document registered under that v3")
	}
	if record.V2 != nil && *record.V2 == correctPidV2 {
		return nil
	}

	used, err := s.documents.IsV2Registered(ctx, correctPidV2)
	if err != nil {
		return err
	}
	if used {
		return appErrors.Clone(appErrors.ErrUniquenessViolation, "correct_pid_v2 already belongs to another document")
	}

	if err := s.documents.UpdateV2(ctx, pidV3, correctPidV2); err != nil {
		return err
	}
	s.logger.Info("legacy pid corrected",
		zap.String("v3", pidV3),
		zap.String("v2", correctPidV2))

	if s.client != nil && s.client.Enabled() {
		if err := s.client.FixPidV2(ctx, pidV3, correctPidV2); err != nil {
			// The local correction stands; the authority can be retried.
			s.logger.Warn("central fix-pid-v2 failed", zap.Error(err))
			return appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status,
				"legacy pid corrected locally but the central authority was not updated")
		}
	}
	return nil
}
