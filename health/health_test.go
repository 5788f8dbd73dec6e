package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	status Status
}

func (f fakeProvider) Status() Status { return f.status }

func newTestRouter(s *Server) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz)
	router.HandleFunc("/statusz", s.handleStatusz)
	return router
}

func TestHealthzAlwaysOK(t *testing.T) {
	s := NewServer(":0", fakeProvider{}, nil)
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatuszReflectsProvider(t *testing.T) {
	s := NewServer(":0", fakeProvider{status: Status{Connected: true, SessionID: "sess-1", LastEventSN: 42}}, nil)
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/statusz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Connected)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, uint64(42), got.LastEventSN)
}

func TestStatuszReportsUnavailableWhenDisconnected(t *testing.T) {
	s := NewServer(":0", fakeProvider{status: Status{Connected: false}}, nil)
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/statusz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
