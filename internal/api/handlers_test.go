// ABOUTME: HTTP handler tests over an in-memory engine
// ABOUTME: Exercises every route through the chi router
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harper/om/internal/core"
	"github.com/harper/om/internal/guidance"
	"github.com/harper/om/internal/localstore"
	"github.com/harper/om/internal/remote"
	"github.com/harper/om/internal/remote/sqlstore"
)

type testServer struct {
	*httptest.Server
	engine   *core.Engine
	sessions *core.Sessions
}

func newTestServer(t *testing.T, rem remote.Store) *testServer {
	t.Helper()
	if rem == nil {
		store, err := sqlstore.OpenSQLite(context.Background(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		rem = store
	}
	engine := core.New(localstore.NewMemory(), rem, core.WithResponder(guidance.DefaultTable()))
	t.Cleanup(func() { _ = engine.Close() })
	sessions := core.NewSessions(engine)

	srv := httptest.NewServer(NewRouter(NewHandler(engine, sessions, zerolog.Nop())))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, engine: engine, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, user string, body interface{}) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (s *testServer) flush(t *testing.T, user string) {
	t.Helper()
	sess, err := s.sessions.Get(user)
	require.NoError(t, err)
	require.NoError(t, s.engine.Flush(context.Background(), sess))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	// generate at least one reconciliation sample
	status, _ = s.do(t, http.MethodGet, "/v1/streak", "u1", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), "om_engine_reconciliations_total")
}

func TestRequiresUserHeader(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/v1/streak", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Contains(t, string(body), UserHeader)
}

func TestStreak(t *testing.T) {
	s := newTestServer(t, nil)

	for i := 0; i < 2; i++ {
		status, body := s.do(t, http.MethodGet, "/v1/streak", "u1", nil)
		require.Equal(t, http.StatusOK, status)
		var resp streakResponse
		require.NoError(t, json.Unmarshal(body, &resp))
		require.Equal(t, "u1", resp.UserID)
		require.Equal(t, 1, resp.Streak, "same-day calls are stable")
	}
}

func TestProfile(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/v1/profile", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var resp profileResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.False(t, resp.Onboarded)
	require.Nil(t, resp.Profile)

	status, body = s.do(t, http.MethodPatch, "/v1/profile", "u1", map[string]string{"deity": "Shiva"})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &resp))
	require.True(t, resp.Onboarded)
	require.Equal(t, "Shiva", resp.Profile.Attributes["deity"])

	status, body = s.do(t, http.MethodPatch, "/v1/profile", "u1", map[string]string{"path": "jnana"})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, "Shiva", resp.Profile.Attributes["deity"], "unspecified fields are kept")
	require.Equal(t, "jnana", resp.Profile.Attributes["path"])

	status, body = s.do(t, http.MethodGet, "/v1/profile?refresh=true", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &resp))
	require.True(t, resp.Onboarded)
}

func TestPatchProfile_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, http.MethodPatch, "/v1/profile", "u1", map[string]string{})
	require.Equal(t, http.StatusBadRequest, status)

	req, err := http.NewRequest(http.MethodPatch, s.URL+"/v1/profile", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set(UserHeader, "u1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodPost, "/v1/history", "u1", AskRequest{Message: "How do I meditate?"})
	require.Equal(t, http.StatusCreated, status)
	var asked core.Exchange
	require.NoError(t, json.Unmarshal(body, &asked))
	require.Equal(t, "How do I meditate?", asked.User.Text)
	require.Contains(t, asked.Guidance.Text, "Divine Consciousness says:")

	status, body = s.do(t, http.MethodPost, "/v1/history", "u1", AskRequest{Message: "thanks", Guidance: "Shanti."})
	require.Equal(t, http.StatusCreated, status)
	var recorded core.Exchange
	require.NoError(t, json.Unmarshal(body, &recorded))
	require.Equal(t, "Shanti.", recorded.Guidance.Text)

	status, body = s.do(t, http.MethodGet, "/v1/history?local=true", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var hist historyResponse
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist.Entries, 4)

	status, body = s.do(t, http.MethodDelete, "/v1/history/"+asked.Guidance.ID, "u1", nil)
	require.Equal(t, http.StatusOK, status)
	var del deleteResponse
	require.NoError(t, json.Unmarshal(body, &del))
	require.ElementsMatch(t, []string{asked.User.ID, asked.Guidance.ID}, del.Removed)

	s.flush(t, "u1")
	status, body = s.do(t, http.MethodGet, "/v1/history", "u1", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist.Entries, 2)
	require.Equal(t, "thanks", hist.Entries[0].Text)

	status, _ = s.do(t, http.MethodDelete, "/v1/history/missing", "u1", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestPostHistory_EmptyMessage(t *testing.T) {
	s := newTestServer(t, nil)

	status, _ := s.do(t, http.MethodPost, "/v1/history", "u1", AskRequest{Message: "  "})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestOfflineWithoutLocal(t *testing.T) {
	s := newTestServer(t, remote.Offline{})

	status, _ := s.do(t, http.MethodGet, "/v1/profile", "u1", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = s.do(t, http.MethodGet, "/v1/streak", "u1", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)

	// local-first writes still succeed
	status, _ = s.do(t, http.MethodPatch, "/v1/profile", "u1", map[string]string{"deity": "Rama"})
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/v1/profile", "u1", nil)
	require.Equal(t, http.StatusOK, status)
}
