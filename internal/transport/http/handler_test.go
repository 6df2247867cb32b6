package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"trivia-service/internal/domain"
	"trivia-service/internal/eventlog"
	"trivia-service/internal/game"
	"trivia-service/internal/infra/memory"
)

const testAdminKey = "test-admin-key"

func newTestServer(t *testing.T) (*httptest.Server, *game.Engine) {
	t.Helper()
	store := memory.NewStore()
	events := eventlog.New(store, clockwork.NewRealClock())
	engine := game.NewEngine(game.Config{
		Sessions: store,
		Answers:  store,
		Events:   events,
		Clock:    clockwork.NewRealClock(),
	})

	catalog := memory.NewCatalog(memory.NewStaticLoader(map[string]domain.QuestionSet{
		"general": {
			ID: "general",
			Questions: []domain.Question{
				{ID: "q1", Text: "?", Options: []string{"a", "b"}, CorrectIndex: 0},
			},
			BonusQuestion: domain.Question{ID: "bonus", Text: "?", Options: []string{"a", "b"}, CorrectIndex: 1},
		},
	}), time.Minute)

	h := NewHandler(engine, events, catalog, nil, testAdminKey)
	srv := httptest.NewServer(h.Router(nil, "", nil, nil))
	t.Cleanup(srv.Close)
	return srv, engine
}

func postJSON(t *testing.T, url string, body any, adminKey string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/session", map[string]string{"sessionId": "s1"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", resp.StatusCode)
	}
	var created struct {
		ID      string          `json:"id"`
		State   domain.State    `json:"state"`
		Players []domain.Player `json:"players"`
	}
	decodeBody(t, resp, &created)
	if created.ID != "s1" || created.State != domain.StateLobby {
		t.Fatalf("unexpected session: %+v", created)
	}
	if created.Players == nil {
		t.Fatalf("players must encode as an empty array, not null")
	}

	resp, err := http.Get(srv.URL + "/api/session/s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/session/unknown")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateSessionValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/session", map[string]string{}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing sessionId, got %d", resp.StatusCode)
	}
}

func TestJoinAndCapacity(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/join", map[string]string{"sessionId": "s1", "username": "Alice Smith"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", resp.StatusCode)
	}
	var joined struct {
		Player domain.Player `json:"player"`
	}
	decodeBody(t, resp, &joined)
	if joined.Player.ID != "alice-smith" {
		t.Fatalf("expected derived id alice-smith, got %s", joined.Player.ID)
	}

	for i := 1; i < domain.MaxPlayers; i++ {
		resp := postJSON(t, srv.URL+"/api/join", map[string]string{"sessionId": "s1", "username": fmt.Sprintf("p%d", i)}, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp = postJSON(t, srv.URL+"/api/join", map[string]string{"sessionId": "s1", "username": "overflow"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 when session is full, got %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireKey(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/start", map[string]string{"sessionId": "s1"}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin key, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/admin/start", map[string]string{"sessionId": "s1"}, "wrong-key")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong admin key, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/admin/verify", nil)
	req.Header.Set("X-Admin-Key", testAdminKey)
	verify, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	verify.Body.Close()
	if verify.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid key, got %d", verify.StatusCode)
	}
}

func TestStartRejectsUnreadySession(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/join", map[string]string{"sessionId": "s1", "username": "Alice"}, "").Body.Close()

	resp := postJSON(t, srv.URL+"/api/admin/start", map[string]string{"sessionId": "s1"}, testAdminKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unready session, got %d", resp.StatusCode)
	}
}

func TestLoadQuestionsFromCatalog(t *testing.T) {
	srv, engine := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/questions/load", map[string]string{"sessionId": "s1", "setId": "general"}, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		OK            bool `json:"ok"`
		QuestionCount int  `json:"questionCount"`
	}
	decodeBody(t, resp, &out)
	if !out.OK || out.QuestionCount != 1 {
		t.Fatalf("unexpected load response: %+v", out)
	}

	s, err := engine.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(s.Questions) != 1 || s.BonusQuestion == nil {
		t.Fatalf("questions not applied to session: %+v", s)
	}

	resp = postJSON(t, srv.URL+"/api/admin/questions/load", map[string]string{"sessionId": "s1", "setId": "missing"}, testAdminKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown set, got %d", resp.StatusCode)
	}
}

func TestAnswerOutsideWindowRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/join", map[string]string{"sessionId": "s1", "username": "Alice"}, "").Body.Close()

	resp := postJSON(t, srv.URL+"/api/answer", map[string]any{
		"sessionId":   "s1",
		"playerId":    "alice",
		"questionId":  "q1",
		"optionIndex": 0,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Accepted bool `json:"accepted"`
	}
	decodeBody(t, resp, &out)
	if out.Accepted {
		t.Fatalf("answers outside a question window must be rejected")
	}
}

func TestListEvents(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/session", map[string]string{"sessionId": "s1"}, "").Body.Close()
	postJSON(t, srv.URL+"/api/join", map[string]string{"sessionId": "s1", "username": "Alice"}, "").Body.Close()

	resp, err := http.Get(srv.URL + "/api/session/s1/events")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var out struct {
		Events    []domain.Event `json:"events"`
		LatestSeq int64          `json:"latestSeq"`
	}
	decodeBody(t, resp, &out)
	if len(out.Events) != 2 {
		t.Fatalf("expected session_reset and players_update, got %d events", len(out.Events))
	}
	if out.LatestSeq != 2 {
		t.Fatalf("expected latestSeq 2, got %d", out.LatestSeq)
	}

	resp, err = http.Get(srv.URL + "/api/session/s1/events?after=" + fmt.Sprint(out.LatestSeq))
	if err != nil {
		t.Fatalf("list events after: %v", err)
	}
	var tail struct {
		Events    []domain.Event `json:"events"`
		LatestSeq int64          `json:"latestSeq"`
	}
	decodeBody(t, resp, &tail)
	if len(tail.Events) != 0 || tail.LatestSeq != out.LatestSeq {
		t.Fatalf("expected empty tail keeping latestSeq, got %+v", tail)
	}
	if tail.Events == nil {
		t.Fatalf("events must encode as an empty array, not null")
	}
}

func TestUploadImageUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/question-image", bytes.NewReader(nil))
	req.Header.Set("X-Admin-Key", testAdminKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when image storage is unconfigured, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
