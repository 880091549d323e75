package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/bracket-engine/internal/competition"
	"github.com/terra-clan/bracket-engine/internal/config"
	"github.com/terra-clan/bracket-engine/internal/events"
	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/rules"
	"github.com/terra-clan/bracket-engine/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	engine *competition.Engine
	key    string
}

func newTestServer(t *testing.T, keys ...string) *testServer {
	t.Helper()
	return newTestServerWithHub(t, nil, keys...)
}

func newTestServerWithHub(t *testing.T, hub *events.Hub, keys ...string) *testServer {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	var opts []competition.Option
	var stream http.Handler
	if hub != nil {
		opts = append(opts, competition.WithPublisher(hub))
		stream = hub
	}
	engine := competition.New(repo, rules.Default(), opts...)
	t.Cleanup(engine.Wait)

	server := NewServer(config.ServerConfig{APIKeys: keys, RequestTimeout: 5 * time.Second}, engine, stream)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	ts := &testServer{t: t, srv: srv, engine: engine}
	if len(keys) > 0 {
		ts.key = keys[0]
	}
	return ts
}

func (ts *testServer) do(method, path string, body interface{}) (int, envelope) {
	ts.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.key != "" {
		req.Header.Set("Authorization", "Bearer "+ts.key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (ts *testServer) ok(method, path string, body, out interface{}) {
	ts.t.Helper()
	status, env := ts.do(method, path, body)
	require.Truef(ts.t, status >= 200 && status < 300, "%s %s: status %d, error %+v", method, path, status, env.Error)
	require.True(ts.t, env.Success)
	if out != nil {
		require.NoError(ts.t, json.Unmarshal(env.Data, out))
	}
}

func (ts *testServer) seedSparring(categoryID string, competitors ...string) {
	ts.t.Helper()
	ts.ok(http.MethodPut, "/api/v1/categories/"+categoryID, categoryRequest{Name: "Kumite", Discipline: models.DisciplineSparring, Tatami: "T1"}, nil)
	for _, c := range competitors {
		ts.ok(http.MethodPut, "/api/v1/categories/"+categoryID+"/registrations/"+c, registrationRequest{Name: c, Approved: true, Paid: true}, nil)
	}
	ts.ok(http.MethodPut, "/api/v1/categories/"+categoryID+"/judges/j1", judgeRequest{Tatami: "T1", Confirmed: true}, nil)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "secret-key-123")

	status, env := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, _ = ts.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, "secret-key-123")

	t.Run("missing key", func(t *testing.T) {
		resp, err := http.Get(ts.srv.URL + "/api/v1/categories")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong key", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/categories", nil)
		req.Header.Set("X-API-Key", "not-the-key")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("header variants", func(t *testing.T) {
		for _, set := range []func(*http.Request){
			func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret-key-123") },
			func(r *http.Request) { r.Header.Set("Authorization", "secret-key-123") },
			func(r *http.Request) { r.Header.Set("X-API-Key", "secret-key-123") },
		} {
			req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/categories", nil)
			set(req)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
	})

	t.Run("query parameter", func(t *testing.T) {
		resp, err := http.Get(ts.srv.URL + "/api/v1/categories?api_key=secret-key-123")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAuthenticationDisabledWithoutKeys(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/api/v1/rules")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "***", maskKey("short"))
	assert.Equal(t, "secret-k...", maskKey("secret-key-123"))
}

func TestSparringFlow(t *testing.T) {
	ts := newTestServer(t, "secret-key-123")
	ts.seedSparring("kumite", "c1", "c2")

	var bracket models.Bracket
	ts.ok(http.MethodPost, "/api/v1/categories/kumite/draws", nil, &bracket)
	assert.Equal(t, []string{"final"}, bracket.Levels)
	require.Len(t, bracket.Units, 1)
	match := bracket.Units[0]

	winner := match.CompetitorID
	loser := match.OpponentID

	var entry models.ScoreEntry
	ts.ok(http.MethodPost, "/api/v1/units/"+match.ID+"/scores", submitScoreRequest{
		JudgeID: "j1", CompetitorID: winner, Card: &models.SparringCard{Ippon: 1},
	}, &entry)
	assert.Equal(t, "j1", entry.JudgeID)

	var result models.Result
	ts.ok(http.MethodGet, "/api/v1/units/"+match.ID+"/result", nil, &result)
	assert.True(t, result.Pending)

	ts.ok(http.MethodPost, "/api/v1/units/"+match.ID+"/scores", submitScoreRequest{
		JudgeID: "j1", CompetitorID: loser, Card: &models.SparringCard{},
	}, nil)

	ts.ok(http.MethodGet, "/api/v1/units/"+match.ID+"/result", nil, &result)
	assert.False(t, result.Pending)
	assert.Equal(t, winner, result.WinnerID)

	var board struct {
		Rows  []models.ScoreboardRow `json:"rows"`
		Total int                    `json:"total"`
	}
	ts.ok(http.MethodGet, "/api/v1/categories/kumite/levels/final/scoreboard", nil, &board)
	assert.Equal(t, 2, board.Total)

	status, env := ts.do(http.MethodPost, "/api/v1/categories/kumite/levels/final/next", nil)
	assert.Equal(t, http.StatusBadRequest, status, "final has no successor")
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSparring("kumite", "c1", "c2")

	var bracket models.Bracket
	ts.ok(http.MethodPost, "/api/v1/categories/kumite/draws", nil, &bracket)
	match := bracket.Units[0]

	t.Run("unknown unit", func(t *testing.T) {
		status, env := ts.do(http.MethodGet, "/api/v1/units/missing/result", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", env.Error.Code)
	})

	t.Run("unconfirmed judge", func(t *testing.T) {
		status, env := ts.do(http.MethodPost, "/api/v1/units/"+match.ID+"/scores", submitScoreRequest{
			JudgeID: "stranger", CompetitorID: match.CompetitorID, Card: &models.SparringCard{Yuko: 1},
		})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "forbidden", env.Error.Code)
	})

	t.Run("repeat draw", func(t *testing.T) {
		status, env := ts.do(http.MethodPost, "/api/v1/categories/kumite/draws", drawRequest{})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "conflict", env.Error.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/v1/units/"+match.ID+"/scores", bytes.NewBufferString("{"))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown discipline", func(t *testing.T) {
		status, _ := ts.do(http.MethodGet, "/api/v1/categories?discipline=chess", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestCreateRoundReportsMissingCompetitors(t *testing.T) {
	ts := newTestServer(t)
	ts.ok(http.MethodPut, "/api/v1/categories/kata", categoryRequest{Name: "Kata", Discipline: models.DisciplineForms}, nil)
	ts.ok(http.MethodPut, "/api/v1/categories/kata/registrations/c1", registrationRequest{Name: "c1", Approved: true, Paid: true}, nil)
	ts.ok(http.MethodPut, "/api/v1/categories/kata/registrations/c2", registrationRequest{Name: "c2", Approved: true}, nil)

	status, env := ts.do(http.MethodPost, "/api/v1/categories/kata/rounds", roundRequest{
		Level:         "first",
		CompetitorIDs: []string{"c1", "c2", "c3"},
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.ElementsMatch(t, []models.MissingCompetitor{
		{CompetitorID: "c2", Reason: models.ReasonNotPaid},
		{CompetitorID: "c3", Reason: models.ReasonNotRegistered},
	}, env.Error.Missing)

	var created struct {
		Units []*models.ContestUnit `json:"units"`
		Total int                   `json:"total"`
	}
	ts.ok(http.MethodPost, "/api/v1/categories/kata/rounds", roundRequest{Level: "first", CompetitorIDs: []string{"c1"}}, &created)
	assert.Equal(t, 1, created.Total)
}

func TestSetUnitStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.seedSparring("kumite", "c1", "c2")

	var bracket models.Bracket
	ts.ok(http.MethodPost, "/api/v1/categories/kumite/draws", nil, &bracket)

	var unit models.ContestUnit
	ts.ok(http.MethodPut, "/api/v1/units/"+bracket.Units[0].ID+"/status", setStatusRequest{Status: models.UnitPostponed}, &unit)
	assert.Equal(t, models.UnitPostponed, unit.Status)

	status, _ := ts.do(http.MethodPut, "/api/v1/units/"+bracket.Units[0].ID+"/status", setStatusRequest{Status: models.UnitCompleted})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.do(http.MethodPut, "/api/v1/units/"+bracket.Units[0].ID+"/status", setStatusRequest{Status: models.UnitScheduled})
	assert.Equal(t, http.StatusConflict, status, "a postponed unit stays postponed")
}

func TestEventStream(t *testing.T) {
	hub := events.NewHub()
	ts := newTestServerWithHub(t, hub, "secret-key-123")
	ts.seedSparring("kumite", "c1", "c2")

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/v1/events?category=kumite&api_key=secret-key-123"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.ok(http.MethodPost, "/api/v1/categories/kumite/draws", nil, nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventLevelGenerated, ev.Type)
	assert.Equal(t, "kumite", ev.CategoryID)
}
