package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scielo-br/pid-provider/internal/dto"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
	"github.com/scielo-br/pid-provider/pkg/response"
)

type fixPidAPI interface {
	FixPidV2(ctx context.Context, pidV3, correctPidV2 string) error
}

// FixPidHandler serves the legacy pid remediation endpoint.
type FixPidHandler struct {
	service fixPidAPI
}

// NewFixPidHandler constructs the handler.
func NewFixPidHandler(service fixPidAPI) *FixPidHandler {
	return &FixPidHandler{service: service}
}

// FixPidV2 corrects the legacy pid of the document identified by v3.
func (h *FixPidHandler) FixPidV2(c *gin.Context) {
	var req dto.FixPidV2Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "pid_v3 and correct_pid_v2 are required 23 character pids"))
		return
	}
	if err := h.service.FixPidV2(c.Request.Context(), req.PidV3, req.CorrectPidV2); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.FixPidV2Response{V2: req.CorrectPidV2})
}
