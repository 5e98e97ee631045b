package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"halo-bridge/internal/commerce"
	"halo-bridge/internal/domain"
	"halo-bridge/internal/state"
)

type recordedStatusUpdate struct {
	entityID int64
	state    string
	status   string
	history  commerce.StatusHistory
}

type stubUpdater struct {
	mu       sync.Mutex
	statuses []recordedStatusUpdate
	comments []commerce.StatusHistory
}

func (s *stubUpdater) OrderStatusUpdate(_ context.Context, entityID int64, state, status string, history commerce.StatusHistory) commerce.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, recordedStatusUpdate{entityID, state, status, history})
	return commerce.Result{Success: true, StatusCode: 200}
}

func (s *stubUpdater) OrderCommentUpdate(_ context.Context, _ int64, history commerce.StatusHistory) commerce.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, history)
	return commerce.Result{Success: true, StatusCode: 200}
}

func newDispatcher(t *testing.T, erpURL string, store state.Store, updater *stubUpdater) *Dispatcher {
	t.Helper()
	enricher := NewEnricher(&stubGroups{code: "General"}, exportConfig(), quietLog())
	return NewDispatcher(enricher, builderSettings(), DispatcherSettings{
		Endpoint:      erpURL,
		SuccessStatus: "sent_to_fulfillment",
		LogParams:     true,
	}, store, updater, &http.Client{}, quietLog())
}

func erpReplyBody(code, text string) string {
	return `<cXML payloadID="echo"><Response><Status code="` + code + `" text="` + text + `"/></Response></cXML>`
}

func TestDispatch_AcceptedOrderUpdatesStatusAndCostCenter(t *testing.T) {
	store := state.NewMemory()
	auditSeen := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/xml", r.Header.Get("Content-Type"))
		// audit artifacts must already be persisted when the POST lands
		_, ok, _ := store.Get(r.Context(), state.KeyPushedXMLPrefix+"000000123")
		auditSeen = ok
		w.Write([]byte(erpReplyBody("200", "OK")))
	}))
	defer srv.Close()

	updater := &stubUpdater{}
	d := newDispatcher(t, srv.URL, store, updater)

	order := baseOrder()
	order.ShippingMethod = "FEDEX_fedex_ground"
	order.Payment.AdditionalInfo.ExtShippingInfo = "CC-9001"

	task, err := d.Dispatch(context.Background(), order)
	require.NoError(t, err)
	require.NoError(t, task.Wait())

	assert.True(t, auditSeen)
	_, ok, _ := store.Get(context.Background(), state.KeyPushedParamPrefix+"000000123")
	assert.True(t, ok)

	require.Len(t, updater.statuses, 1)
	assert.Equal(t, int64(41), updater.statuses[0].entityID)
	assert.Equal(t, "sent_to_fulfillment", updater.statuses[0].status)
	assert.Contains(t, updater.statuses[0].history.Comment, "000000123_HALO")

	require.Len(t, updater.comments, 1)
	assert.Equal(t, "Cost Center Number: CC-9001", updater.comments[0].Comment)
	assert.Equal(t, 0, updater.comments[0].IsVisibleOnFront)
}

func TestDispatch_RejectedOrderSurfacesStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(erpReplyBody("400", "duplicate payloadID")))
	}))
	defer srv.Close()

	updater := &stubUpdater{}
	d := newDispatcher(t, srv.URL, state.NewMemory(), updater)

	task, err := d.Dispatch(context.Background(), baseOrder())
	require.NoError(t, err)
	err = task.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate payloadID")
	assert.Empty(t, updater.statuses)
}

func TestDispatch_MalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL, state.NewMemory(), &stubUpdater{})
	task, err := d.Dispatch(context.Background(), baseOrder())
	require.NoError(t, err)
	err = task.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid response format")
}

func TestDispatch_RejectsInvalidOrder(t *testing.T) {
	d := newDispatcher(t, "http://unused", state.NewMemory(), &stubUpdater{})
	_, err := d.Dispatch(context.Background(), &domain.Order{})
	require.Error(t, err)
}

func TestDispatch_AuditWriteFailureDoesNotBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(erpReplyBody("200", "OK")))
	}))
	defer srv.Close()

	updater := &stubUpdater{}
	d := newDispatcher(t, srv.URL, failingStore{}, updater)
	task, err := d.Dispatch(context.Background(), baseOrder())
	require.NoError(t, err)
	require.NoError(t, task.Wait())
	require.Len(t, updater.statuses, 1)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, context.DeadlineExceeded
}

func (failingStore) Put(context.Context, string, string, time.Duration) error {
	return context.DeadlineExceeded
}
