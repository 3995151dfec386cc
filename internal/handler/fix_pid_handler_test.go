package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type fixPidAPIMock struct {
	err    error
	lastV3 string
	lastV2 string
}

func (m *fixPidAPIMock) FixPidV2(ctx context.Context, pidV3, correctPidV2 string) error {
	m.lastV3 = pidV3
	m.lastV2 = correctPidV2
	return m.err
}

func TestFixPidHandlerSuccess(t *testing.T) {
	service := &fixPidAPIMock{}
	handler := NewFixPidHandler(service)

	body := bytes.NewBufferString(`{"pid_v3":"TPg77CCrGj4wcbLCh9vG8bS","correct_pid_v2":"S1806-37132022000201100"}`)
	w := httptest.NewRecorder()
	handler.FixPidV2(authedContext(t, w, http.MethodPost, "/pid_provider/fix_pid_v2", "application/json", body))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "TPg77CCrGj4wcbLCh9vG8bS", service.lastV3)
	assert.Equal(t, "S1806-37132022000201100", service.lastV2)
	assert.Contains(t, w.Body.String(), "S1806-37132022000201100")
}

func TestFixPidHandlerInvalidBody(t *testing.T) {
	service := &fixPidAPIMock{}
	handler := NewFixPidHandler(service)

	body := bytes.NewBufferString(`{"pid_v3":"too-short"}`)
	w := httptest.NewRecorder()
	handler.FixPidV2(authedContext(t, w, http.MethodPost, "/pid_provider/fix_pid_v2", "application/json", body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, service.lastV3)
}

func TestFixPidHandlerServiceError(t *testing.T) {
	service := &fixPidAPIMock{err: appErrors.Clone(appErrors.ErrNotFound, "document not found")}
	handler := NewFixPidHandler(service)

	body := bytes.NewBufferString(`{"pid_v3":"TPg77CCrGj4wcbLCh9vG8bS","correct_pid_v2":"S1806-37132022000201100"}`)
	w := httptest.NewRecorder()
	handler.FixPidV2(authedContext(t, w, http.MethodPost, "/pid_provider/fix_pid_v2", "application/json", body))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
