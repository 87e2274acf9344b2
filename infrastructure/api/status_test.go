package api

import (
	"encoding/json"
	"github.com/Aero25x/ton-wallet-tracker/business/domain/tracker"
	"github.com/google/go-cmp/cmp"
	"github.com/jellydator/ttlcache/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type FakeStatusProvider struct {
	calls atomic.Int32
}

func (f *FakeStatusProvider) Status() tracker.Status {
	calls := f.calls.Add(1)
	return tracker.Status{
		Account:               "EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N",
		Mode:                  tracker.ModePoll.String(),
		Watermark:             47597345000003,
		HasWatermark:          true,
		SeenTransactions:      20,
		DeliveredTransactions: uint64(calls),
		LastCycle:             time.Date(2025, 4, 14, 16, 46, 5, 0, time.UTC),
	}
}

func createStatusCache(ttl time.Duration) *ttlcache.Cache[string, tracker.Status] {
	var statusCache = ttlcache.New[string, tracker.Status](
		ttlcache.WithTTL[string, tracker.Status](ttl),
		ttlcache.WithDisableTouchOnHit[string, tracker.Status](), // don't refresh ttl upon getting the item from cache
	)
	go statusCache.Start()
	return statusCache
}

func TestStatusCache_Status_GivenCached_ThenProviderCalledOnce(t *testing.T) {
	cache := createStatusCache(time.Minute)
	defer cache.Stop()

	provider := &FakeStatusProvider{}
	statusCache := NewStatusCache(provider, cache)

	first := statusCache.Status()
	second := statusCache.Status()

	assert.Equal(t, int32(1), provider.calls.Load())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Unexpected result: %v", diff)
	}
}

func TestStatusCache_Status_GivenExpired_ThenRefreshed(t *testing.T) {
	cache := createStatusCache(time.Nanosecond)
	defer cache.Stop()

	provider := &FakeStatusProvider{}
	statusCache := NewStatusCache(provider, cache)

	statusCache.Status()
	time.Sleep(time.Millisecond)
	status := statusCache.Status()

	assert.Equal(t, int32(2), provider.calls.Load())
	assert.Equal(t, uint64(2), status.DeliveredTransactions)
}

func TestHandler_Status(t *testing.T) {
	cache := createStatusCache(time.Minute)
	defer cache.Stop()

	handler := NewHandler(NewStatusCache(&FakeStatusProvider{}, cache))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &got))
	expected := map[string]any{
		"account":               "EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N",
		"mode":                  "poll",
		"watermark":             "47597345000003",
		"hasWatermark":          true,
		"seenTransactions":      float64(20),
		"deliveredTransactions": float64(1),
		"consecutiveErrors":     float64(0),
		"lastCycle":             "2025-04-14T16:46:05Z",
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("Unexpected result: %v", diff)
	}
}

func TestHandler_Health(t *testing.T) {
	cache := createStatusCache(time.Minute)
	defer cache.Stop()

	handler := NewHandler(NewStatusCache(&FakeStatusProvider{}, cache))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"UP"}`, res.Body.String())
}

func TestHandler_Metrics(t *testing.T) {
	cache := createStatusCache(time.Minute)
	defer cache.Stop()

	handler := NewHandler(NewStatusCache(&FakeStatusProvider{}, cache))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "go_goroutines")
}
