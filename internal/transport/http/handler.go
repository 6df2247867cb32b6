package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"trivia-service/internal/domain"
	"trivia-service/internal/eventlog"
	"trivia-service/internal/game"
)

// QuestionCatalog resolves prepared question sets by id.
type QuestionCatalog interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// ImageStore persists question images and returns their public URL.
type ImageStore interface {
	Put(ctx context.Context, sessionID, questionID, filename string, content []byte, contentType string) (string, error)
}

const maxImageUpload = 10 << 20 // 10 MiB

// Handler exposes the REST surface over the game engine. Catalog and
// images are optional; their endpoints answer 503 when unconfigured.
type Handler struct {
	engine   *game.Engine
	events   *eventlog.Log
	catalog  QuestionCatalog
	images   ImageStore
	adminKey string
}

func NewHandler(engine *game.Engine, events *eventlog.Log, catalog QuestionCatalog, images ImageStore, adminKey string) *Handler {
	return &Handler{
		engine:   engine,
		events:   events,
		catalog:  catalog,
		images:   images,
		adminKey: adminKey,
	}
}

// Router assembles the full HTTP surface: API routes, websocket relay,
// media file server, health and metrics, wrapped in CORS.
func (h *Handler) Router(ws *WSHandler, mediaDir string, corsOrigins []string, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/session", h.createOrGetSession)
	mux.HandleFunc("GET /api/session/{id}", h.getSession)
	mux.HandleFunc("GET /api/session/{id}/events", h.listEvents)
	mux.HandleFunc("POST /api/join", h.join)
	mux.HandleFunc("POST /api/answer", h.answer)

	mux.HandleFunc("POST /api/admin/questions", h.requireAdmin(h.setQuestions))
	mux.HandleFunc("POST /api/admin/questions/load", h.requireAdmin(h.loadQuestions))
	mux.HandleFunc("POST /api/admin/start", h.requireAdmin(h.start))
	mux.HandleFunc("POST /api/admin/reset", h.requireAdmin(h.reset))
	mux.HandleFunc("POST /api/admin/question-image", h.requireAdmin(h.uploadQuestionImage))
	mux.HandleFunc("GET /api/admin/verify", h.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}))

	if ws != nil {
		mux.HandleFunc("GET /ws", ws.ServeWS)
	}
	if mediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))
	}
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Admin-Key"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

// requireAdmin gates admin routes behind the shared X-Admin-Key secret.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Key") != h.adminKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid admin key"})
			return
		}
		next(w, r)
	}
}

type createSessionIn struct {
	SessionID string `json:"sessionId"`
}

type publicSession struct {
	ID                 string          `json:"id"`
	State              domain.State    `json:"state"`
	Players            []domain.Player `json:"players"`
	CurrentQuestionIdx int             `json:"currentQuestionIdx"`
	QuestionDeadlineTS *float64        `json:"questionDeadlineTs"`
}

func publicView(s *domain.Session) publicSession {
	players := s.Players
	if players == nil {
		players = []domain.Player{}
	}
	return publicSession{
		ID:                 s.ID,
		State:              s.State,
		Players:            players,
		CurrentQuestionIdx: s.CurrentQuestionIdx,
		QuestionDeadlineTS: s.QuestionDeadlineTS,
	}
}

func (h *Handler) createOrGetSession(w http.ResponseWriter, r *http.Request) {
	var in createSessionIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}
	s, _, err := h.engine.CreateOrGet(r.Context(), in.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicView(s))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicView(s))
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.events.List(r.Context(), sessionID, after, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	latest := after
	if len(events) > 0 {
		latest = events[len(events)-1].Seq
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":    events,
		"latestSeq": latest,
	})
}

type joinIn struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var in joinIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.SessionID == "" || in.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId and username are required"})
		return
	}
	p, err := h.engine.Join(r.Context(), in.SessionID, in.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": p})
}

type setQuestionsIn struct {
	SessionID     string            `json:"sessionId"`
	Questions     []domain.Question `json:"questions"`
	BonusQuestion domain.Question   `json:"bonusQuestion"`
}

func (h *Handler) setQuestions(w http.ResponseWriter, r *http.Request) {
	var in setQuestionsIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}
	if err := h.engine.SetQuestions(r.Context(), in.SessionID, in.Questions, in.BonusQuestion); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type loadQuestionsIn struct {
	SessionID string `json:"sessionId"`
	SetID     string `json:"setId"`
}

func (h *Handler) loadQuestions(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "question catalog is not configured"})
		return
	}
	var in loadQuestionsIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.SessionID == "" || in.SetID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId and setId are required"})
		return
	}
	set, err := h.catalog.GetQuestionSet(r.Context(), in.SetID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.engine.SetQuestions(r.Context(), in.SessionID, set.Questions, set.BonusQuestion); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "questionCount": len(set.Questions)})
}

type sessionOnlyIn struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var in sessionOnlyIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.engine.Start(r.Context(), in.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	var in sessionOnlyIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.engine.Reset(r.Context(), in.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type answerIn struct {
	SessionID   string `json:"sessionId"`
	PlayerID    string `json:"playerId"`
	QuestionID  string `json:"questionId"`
	OptionIndex int    `json:"optionIndex"`
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	var in answerIn
	if !decodeJSON(w, r, &in) {
		return
	}
	accepted, err := h.engine.SubmitAnswer(r.Context(), in.SessionID, in.PlayerID, in.QuestionID, in.OptionIndex)
	if err != nil {
		answersRejected.Inc()
		writeError(w, err)
		return
	}
	if accepted {
		answersAccepted.Inc()
	} else {
		answersRejected.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

func (h *Handler) uploadQuestionImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "image storage is not configured"})
		return
	}
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	sessionID := r.FormValue("sessionId")
	questionID := r.FormValue("questionId")
	file, header, err := r.FormFile("file")
	if sessionID == "" || questionID == "" || err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId, questionId and file are required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read file"})
		return
	}

	url, err := h.images.Put(r.Context(), sessionID, questionID, header.Filename, content, header.Header.Get("Content-Type"))
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("image upload failed")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuestionSetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSessionFull), errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrNoQuestions):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateAnswer):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
