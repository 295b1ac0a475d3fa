package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-hub/internal/cache"
	"property-hub/internal/hub"
	"property-hub/internal/models"
	"property-hub/internal/scraper"
)

type stubSource struct {
	id   models.SourceID
	info models.PropertyInfo
	err  error

	mu    sync.Mutex
	calls int
}

func (s *stubSource) Source() models.SourceID { return s.id }

func (s *stubSource) Fetch(context.Context, models.Address) models.ScraperResult {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return models.Failure(s.err)
	}
	data, _ := json.Marshal(s.info)
	return models.Success(models.RawResult{Kind: models.RawJSON, Data: data, FetchedAt: time.Now()})
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubSource) Parse(raw models.RawResult) (models.PropertyInfo, error) {
	var info models.PropertyInfo
	err := json.Unmarshal(raw.Data, &info)
	return info, err
}

type testServer struct {
	*httptest.Server
	store   *cache.MemoryStore
	sources *scraper.Registry
	primary *stubSource
	backup  *stubSource
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	primary := &stubSource{id: models.SourceCoreLogic, err: scraper.ErrBlocked}
	backup := &stubSource{id: models.SourceDomain, info: models.PropertyInfo{
		YearBuilt:      models.Ptr(1925),
		LandArea:       models.Ptr(650.0),
		EstimatedValue: models.Ptr(int64(1250000)),
	}}
	registry := scraper.NewRegistry()
	registry.Register(primary)
	registry.Register(backup)

	store := cache.NewMemoryStore(cache.Options{TTL: time.Hour})
	coordinator := hub.NewCoordinator(store, registry, hub.Config{
		RequiredFields: []models.Field{models.FieldYearBuilt, models.FieldLandArea},
	}, logger)

	h := NewHandlers(coordinator, store, registry, hub.DefaultOptions(), logger)
	srv := httptest.NewServer(NewRouter(h, logger))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: store, sources: registry, primary: primary, backup: backup}
}

func (s *testServer) getProperty(t *testing.T, params url.Values) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+"/api/property?"+params.Encode(), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://appraisals.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestGetProperty(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.getProperty(t, url.Values{"address": {"12 Smith St, Richmond VIC 3121"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	var info models.PropertyInfo
	require.NoError(t, json.Unmarshal(body["property"], &info))
	require.NotNil(t, info.YearBuilt)
	assert.Equal(t, 1925, *info.YearBuilt)

	var provenance map[models.Field]models.SourceID
	require.NoError(t, json.Unmarshal(body["provenance"], &provenance))
	assert.Equal(t, models.SourceDomain, provenance[models.FieldLandArea])

	var attempts []hub.Attempt
	require.NoError(t, json.Unmarshal(body["attempts"], &attempts))
	require.Len(t, attempts, 2)
	assert.Contains(t, attempts[0].Error, "blocked")

	assert.JSONEq(t, `[]`, string(body["missing"]))
}

func TestGetPropertyOptions(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.getProperty(t, url.Values{
		"address":   {"12 Smith St, Richmond VIC 3121"},
		"fallbacks": {"false"},
		"required":  {"yearBuilt,council"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, srv.backup.Calls())
	assert.JSONEq(t, `["yearBuilt","council"]`, string(body["missing"]))

	resp, _ = srv.getProperty(t, url.Values{"address": {"12 Smith St, Richmond VIC 3121"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, srv.backup.Calls())

	resp, _ = srv.getProperty(t, url.Values{"address": {"12 Smith St, Richmond VIC 3121"}, "refresh": {"true"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, srv.backup.Calls())
}

func TestGetPropertyBadRequests(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		params url.Values
	}{
		{"missing address", url.Values{}},
		{"invalid address", url.Values{"address": {"somewhere near the river"}}},
		{"bad fallbacks", url.Values{"address": {"12 Smith St, Richmond VIC 3121"}, "fallbacks": {"perhaps"}}},
		{"negative max", url.Values{"address": {"12 Smith St, Richmond VIC 3121"}, "max_fallbacks": {"-2"}}},
		{"unknown field", url.Values{"address": {"12 Smith St, Richmond VIC 3121"}, "required": {"colour"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := srv.getProperty(t, tt.params)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Zero(t, srv.primary.Calls()+srv.backup.Calls())
}

func TestListSources(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/sources")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sources []sourceStatus `json:"sources"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, len(models.Priority), body.Count)
	assert.Equal(t, models.SourceCoreLogic, body.Sources[0].Source)
	assert.True(t, body.Sources[0].Primary)
	assert.True(t, body.Sources[1].Enabled)
	assert.False(t, body.Sources[2].Enabled)
}

func TestCacheEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := srv.getProperty(t, url.Values{"address": {"12 Smith St, Richmond VIC 3121"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, srv.store.Len())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/cache/expire", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var expired map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&expired))
	resp.Body.Close()
	assert.Equal(t, 0, expired["removed"])
	assert.Equal(t, 1, srv.store.Len())

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/cache", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, srv.store.Len())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
