package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scielo-br/pid-provider/internal/dto"
	"github.com/scielo-br/pid-provider/internal/models"
	"github.com/scielo-br/pid-provider/internal/remote"
	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

type stubRemote struct {
	enabled bool
	result  *remote.Result
	err     error
	calls   int
}

func (s *stubRemote) Enabled() bool { return s.enabled }

func (s *stubRemote) Register(ctx context.Context, filename string, xmlData []byte) (*remote.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubSyncStore struct {
	stubDocStore
	synchronized map[string]bool
	inCore       map[string]bool
	pending      []models.DocumentRecord
	latestByID   map[string]*models.XMLVersion
}

func newStubSyncStore() *stubSyncStore {
	return &stubSyncStore{
		stubDocStore: *emptyStore(),
		synchronized: map[string]bool{},
		inCore:       map[string]bool{},
		latestByID:   map[string]*models.XMLVersion{},
	}
}

func (s *stubSyncStore) SetSynchronized(ctx context.Context, id string, registeredInCore bool) error {
	s.synchronized[id] = true
	s.inCore[id] = registeredInCore
	return nil
}

func (s *stubSyncStore) ListUnsynchronized(ctx context.Context, limit int) ([]models.DocumentRecord, error) {
	return s.pending, nil
}

func (s *stubSyncStore) LatestVersion(ctx context.Context, documentID string) (*models.XMLVersion, error) {
	return s.latestByID[documentID], nil
}

type stubRequestStore struct {
	requests []*models.PidRequest
	resolved []string
}

func (s *stubRequestStore) Create(ctx context.Context, request *models.PidRequest) error {
	s.requests = append(s.requests, request)
	return nil
}

func (s *stubRequestStore) MarkResolved(ctx context.Context, documentID string) error {
	s.resolved = append(s.resolved, documentID)
	return nil
}

func syncRecord() *models.DocumentRecord {
	return &models.DocumentRecord{
		ID:        "doc-1",
		Shape:     models.ShapeVersionOfRecord,
		V3:        models.StringPtr("TPg77CCrGj4wcbLCh9vG8bS"),
		V2:        models.StringPtr("S1806-37132022000201100"),
		PkgName:   "1100.xml",
		CreatedAt: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSynchronizeDegradedMode(t *testing.T) {
	client := &stubRemote{enabled: false}
	store := newStubSyncStore()
	requests := &stubRequestStore{}
	svc := NewSyncService(client, store, requests, 10, nil, nil)

	outcome := svc.Synchronize(context.Background(), syncRecord(), mustParse(t, vorXML), dto.RegisterOptions{})

	// Not configured is not an error, the registration just stays local.
	assert.False(t, outcome.RegisteredInCore)
	assert.False(t, outcome.Synchronized)
	assert.Zero(t, client.calls)
	assert.Empty(t, requests.requests)
}

func TestSynchronizeSuccess(t *testing.T) {
	client := &stubRemote{enabled: true, result: &remote.Result{V3: "TPg77CCrGj4wcbLCh9vG8bS"}}
	store := newStubSyncStore()
	requests := &stubRequestStore{}
	svc := NewSyncService(client, store, requests, 10, nil, nil)
	record := syncRecord()

	outcome := svc.Synchronize(context.Background(), record, mustParse(t, vorXML), dto.RegisterOptions{Username: "requester"})

	assert.True(t, outcome.RegisteredInCore)
	assert.True(t, outcome.Synchronized)
	assert.True(t, store.synchronized["doc-1"])
	assert.True(t, store.inCore["doc-1"])
	require.Len(t, requests.requests, 1)
	assert.Equal(t, models.PidRequestStatusSuccess, requests.requests[0].Status)
	assert.Equal(t, []string{"doc-1"}, requests.resolved)
}

func TestSynchronizeFailureKeepsDocumentPending(t *testing.T) {
	client := &stubRemote{enabled: true, err: appErrors.Clone(appErrors.ErrRemoteUnavailable, "")}
	store := newStubSyncStore()
	requests := &stubRequestStore{}
	svc := NewSyncService(client, store, requests, 10, nil, nil)

	outcome := svc.Synchronize(context.Background(), syncRecord(), mustParse(t, vorXML), dto.RegisterOptions{Username: "requester"})

	assert.False(t, outcome.Synchronized)
	assert.False(t, store.synchronized["doc-1"])
	require.Len(t, requests.requests, 1)
	assert.Equal(t, models.PidRequestStatusError, requests.requests[0].Status)
	require.NotNil(t, requests.requests[0].ErrorType)
	assert.Equal(t, appErrors.ErrRemoteUnavailable.Code, *requests.requests[0].ErrorType)
	assert.Empty(t, requests.resolved)
}

func TestSynchronizeCorrections(t *testing.T) {
	corrected := map[string]string{"pid_v2": "S1806-37132022000299999"}

	t.Run("older remote record wins", func(t *testing.T) {
		client := &stubRemote{enabled: true, result: &remote.Result{
			XMLChanged: corrected,
			Created:    time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		}}
		store := newStubSyncStore()
		svc := NewSyncService(client, store, &stubRequestStore{}, 10, nil, nil)
		record := syncRecord()
		doc := mustParse(t, vorXML)

		outcome := svc.Synchronize(context.Background(), record, doc, dto.RegisterOptions{})
		assert.Equal(t, "S1806-37132022000299999", outcome.V2Corrected)
		assert.Equal(t, "S1806-37132022000299999", *record.V2)
		assert.Equal(t, "S1806-37132022000299999", doc.V2())
		require.Len(t, store.updated, 1)
	})

	t.Run("younger remote record loses", func(t *testing.T) {
		client := &stubRemote{enabled: true, result: &remote.Result{
			XMLChanged: corrected,
			Created:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}}
		store := newStubSyncStore()
		svc := NewSyncService(client, store, &stubRequestStore{}, 10, nil, nil)
		record := syncRecord()

		outcome := svc.Synchronize(context.Background(), record, mustParse(t, vorXML), dto.RegisterOptions{})
		assert.Empty(t, outcome.V2Corrected)
		assert.Equal(t, "S1806-37132022000201100", *record.V2)
		assert.Empty(t, store.updated)
	})

	t.Run("explicit opt-in overrides the tie-break", func(t *testing.T) {
		client := &stubRemote{enabled: true, result: &remote.Result{
			XMLChanged: corrected,
			Created:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}}
		store := newStubSyncStore()
		svc := NewSyncService(client, store, &stubRequestStore{}, 10, nil, nil)
		record := syncRecord()

		outcome := svc.Synchronize(context.Background(), record, mustParse(t, vorXML), dto.RegisterOptions{ApplyXMLChanges: true})
		assert.Equal(t, "S1806-37132022000299999", outcome.V2Corrected)
	})
}

func TestSynchronizePending(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		svc := NewSyncService(&stubRemote{}, newStubSyncStore(), &stubRequestStore{}, 10, nil, nil)
		_, err := svc.SynchronizePending(context.Background(), "ops")
		require.Error(t, err)
		assert.True(t, appErrors.Is(err, appErrors.ErrRemoteNotConfigured.Code))
	})

	t.Run("replays stored xml", func(t *testing.T) {
		client := &stubRemote{enabled: true, result: &remote.Result{}}
		store := newStubSyncStore()
		record := syncRecord()
		store.pending = []models.DocumentRecord{*record}
		store.latestByID["doc-1"] = &models.XMLVersion{Content: []byte(vorXML)}
		svc := NewSyncService(client, store, &stubRequestStore{}, 10, nil, nil)

		synced, err := svc.SynchronizePending(context.Background(), "ops")
		require.NoError(t, err)
		assert.Equal(t, 1, synced)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("skips records without stored xml", func(t *testing.T) {
		client := &stubRemote{enabled: true, result: &remote.Result{}}
		store := newStubSyncStore()
		store.pending = []models.DocumentRecord{*syncRecord()}
		svc := NewSyncService(client, store, &stubRequestStore{}, 10, nil, nil)

		synced, err := svc.SynchronizePending(context.Background(), "ops")
		require.NoError(t, err)
		assert.Zero(t, synced)
		assert.Zero(t, client.calls)
	})
}
