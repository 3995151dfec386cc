package service

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scielo-br/pid-provider/internal/dto"
	"github.com/scielo-br/pid-provider/internal/xmldoc"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type stubRegistrar struct {
	err   error
	calls []string
}

func (s *stubRegistrar) Register(ctx context.Context, doc *xmldoc.Document, opts dto.RegisterOptions) (dto.RegistrationResult, error) {
	s.calls = append(s.calls, doc.Filename())
	if s.err != nil {
		return dto.RegistrationResult{}, s.err
	}
	return dto.RegistrationResult{Filename: doc.Filename(), Created: true}, nil
}

func buildTestZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for name, content := range entries {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

func TestRegisterZip(t *testing.T) {
	registrar := &stubRegistrar{}
	svc := NewBatchService(registrar, nil)

	archive := buildTestZip(t, map[string]string{
		"good.xml":   vorXML,
		"broken.xml": "<article><unclosed",
		"notes.txt":  "ignored",
	})

	results, err := svc.RegisterZip(context.Background(), archive, dto.RegisterOptions{Username: "requester"})
	require.NoError(t, err)
	require.Len(t, results, 2, "non-xml entries are skipped")

	var failures, successes int
	for _, result := range results {
		if result.Failed() {
			failures++
			assert.Equal(t, appErrors.ErrXMLParse.Code, result.ErrorType)
		} else {
			successes++
			assert.True(t, result.Created)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1, successes)
	assert.Equal(t, []string{"good.xml"}, registrar.calls)
}

func TestRegisterZipNeverAbortsOnItemFailure(t *testing.T) {
	registrar := &stubRegistrar{err: appErrors.Clone(appErrors.ErrForbiddenAOP, "")}
	svc := NewBatchService(registrar, nil)

	archive := buildTestZip(t, map[string]string{"a.xml": aopXML, "b.xml": vorXML})
	results, err := svc.RegisterZip(context.Background(), archive, dto.RegisterOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.Equal(t, appErrors.ErrForbiddenAOP.Code, result.ErrorType)
	}
	assert.Len(t, registrar.calls, 2, "every entry is still attempted")
}

func TestRegisterZipRejectsBadArchive(t *testing.T) {
	svc := NewBatchService(&stubRegistrar{}, nil)
	_, err := svc.RegisterZip(context.Background(), []byte("not a zip"), dto.RegisterOptions{})
	require.Error(t, err)
}
