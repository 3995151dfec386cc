package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scielo-br/pid-provider/internal/dto"
	"github.com/scielo-br/pid-provider/internal/models"
	"github.com/scielo-br/pid-provider/internal/xmldoc"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
	"github.com/scielo-br/pid-provider/pkg/response"
)

type registrationAPI interface {
	Register(ctx context.Context, doc *xmldoc.Document, opts dto.RegisterOptions) (dto.RegistrationResult, error)
	IsRegistered(ctx context.Context, doc *xmldoc.Document) (*dto.RegistrationResult, error)
}

type batchAPI interface {
	RegisterZip(ctx context.Context, archive []byte, opts dto.RegisterOptions) ([]dto.RegistrationResult, error)
}

type recordAPI interface {
	GetByV3(ctx context.Context, v3 string) (*models.DocumentRecord, error)
}

type syncAPI interface {
	SynchronizePending(ctx context.Context, username string) (int, error)
}

// PidHandler serves document registration and resolution endpoints.
type PidHandler struct {
	registration registrationAPI
	batch        batchAPI
	records      recordAPI
	sync         syncAPI
}

// NewPidHandler constructs the handler. sync may be nil for local-only
// deployments.
func NewPidHandler(registration registrationAPI, batch batchAPI, records recordAPI, sync syncAPI) *PidHandler {
	return &PidHandler{registration: registration, batch: batch, records: records, sync: sync}
}

// Register accepts an uploaded file, either a single XML or a zip of XMLs,
// and returns one registration result per document. Item failures are
// embedded per result; the endpoint itself only fails on an unusable upload.
func (h *PidHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload"))
		return
	}
	defer src.Close()
	payload, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}

	opts := dto.RegisterOptions{
		Username:         claims.Username,
		IsPublished:      c.PostForm("is_published") == "true",
		ForceUpdate:      c.PostForm("force_update") == "true",
		SkipRemote:       c.PostForm("skip_remote") == "true",
		ApplyXMLChanges:  c.PostForm("apply_xml_changes") == "true",
		RegisteredInCore: c.PostForm("registered_in_core") == "true",
		// Replacing a taken pid from the XML is the historical behavior;
		// callers opt out explicitly.
		AutoSolvePidConflict: c.DefaultPostForm("auto_solve_pid_conflict", "true") == "true",
	}
	if raw := c.PostForm("origin_date"); raw != "" {
		originDate, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "origin_date must be yyyy-mm-dd"))
			return
		}
		opts.OriginDate = &originDate
	}

	name := strings.ToLower(fileHeader.Filename)
	switch {
	case strings.HasSuffix(name, ".zip"):
		results, err := h.batch.RegisterZip(c.Request.Context(), payload, opts)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, results)
	case strings.HasSuffix(name, ".xml"):
		doc, err := xmldoc.Parse(payload, fileHeader.Filename)
		if err != nil {
			response.Error(c, err)
			return
		}
		result, err := h.registration.Register(c.Request.Context(), doc, opts)
		if err != nil {
			response.JSON(c, http.StatusOK, []dto.RegistrationResult{dto.FailureResult(fileHeader.Filename, err)})
			return
		}
		response.JSON(c, http.StatusOK, []dto.RegistrationResult{result})
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file must be .xml or .zip"))
	}
}

// IsRegistered reports the identifiers a document already carries without
// registering it.
func (h *PidHandler) IsRegistered(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload"))
		return
	}
	defer src.Close()
	payload, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}

	doc, err := xmldoc.Parse(payload, fileHeader.Filename)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.registration.IsRegistered(c.Request.Context(), doc)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result == nil {
		response.JSON(c, http.StatusOK, gin.H{"registered": false})
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// GetByV3 resolves a registered document by its opaque pid.
func (h *PidHandler) GetByV3(c *gin.Context) {
	record, err := h.records.GetByV3(c.Request.Context(), c.Param("v3"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}

// SynchronizePending replays documents the central authority has not
// acknowledged yet.
func (h *PidHandler) SynchronizePending(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.sync == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrRemoteNotConfigured, ""))
		return
	}
	synced, err := h.sync.SynchronizePending(c.Request.Context(), claims.Username)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"synchronized": synced})
}
