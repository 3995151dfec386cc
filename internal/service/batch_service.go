package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/scielo-br/pid-provider/internal/dto"
	"github.com/scielo-br/pid-provider/internal/xmldoc"
)

type registrar interface {
	Register(ctx context.Context, doc *xmldoc.Document, opts dto.RegisterOptions) (dto.RegistrationResult, error)
}

// BatchService registers every XML inside an uploaded zip package. One bad
// entry never aborts the batch; its failure is embedded in the per-item
// result instead.
type BatchService struct {
	registration registrar
	logger       *zap.Logger
}

// NewBatchService constructs the service.
func NewBatchService(registration registrar, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{registration: registration, logger: logger}
}

// RegisterZip reconciles every xml entry of the archive, in order, and
// returns one result per entry.
func (s *BatchService) RegisterZip(ctx context.Context, archive []byte, opts dto.RegisterOptions) ([]dto.RegistrationResult, error) {
	entries, err := xmldoc.FromZip(archive)
	if err != nil {
		return nil, err
	}

	results := make([]dto.RegistrationResult, 0, len(entries))
	for _, entry := range entries {
		if entry.Err != nil {
			s.logger.Warn("zip entry rejected", zap.String("filename", entry.Filename), zap.Error(entry.Err))
			results = append(results, dto.FailureResult(entry.Filename, entry.Err))
			continue
		}
		result, err := s.registration.Register(ctx, entry.Doc, opts)
		if err != nil {
			s.logger.Warn("registration failed", zap.String("filename", entry.Filename), zap.Error(err))
			results = append(results, dto.FailureResult(entry.Filename, err))
			continue
		}
		results = append(results, result)
	}
	return results, nil
}
