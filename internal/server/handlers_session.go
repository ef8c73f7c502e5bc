package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/pkg/errkind"
	"github.com/arborio/agentcore/pkg/types"
)

// sessionSummary is the list-view shape: `GET /sessions` returns these
// sorted by updatedAt descending.
type sessionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

func summarize(s *types.Session) sessionSummary {
	return sessionSummary{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.Time.Created,
		UpdatedAt: s.Time.Updated,
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessionService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}

	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, summarize(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	sess, err := s.sessionService.Create(r.Context(), req.ID, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, errkind.Input, "invalid JSON body")
		return
	}

	sess, err := s.sessionService.Update(r.Context(), id, updates)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, errkind.Input, "session not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.sessionService.Delete(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, errkind.Input, "session not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	writeSuccess(w)
}

// listMessages returns the session's messages with their parts inlined.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	messages, err := s.sessionService.GetMessages(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}

	type messageView struct {
		Info  *types.Message `json:"info"`
		Parts []types.Part   `json:"parts"`
	}
	out := make([]messageView, 0, len(messages))
	for _, msg := range messages {
		parts, _ := s.sessionService.GetParts(r.Context(), msg.ID)
		if parts == nil {
			parts = []types.Part{}
		}
		out = append(out, messageView{Info: msg, Parts: parts})
	}
	writeJSON(w, http.StatusOK, out)
}

// prompt accepts a user prompt and returns as soon as the turn is accepted;
// progress streams over /events.
func (s *Server) prompt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Content string          `json:"content"`
		Model   *types.ModelRef `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, errkind.Input, "content is required")
		return
	}

	if s.sessionService.GetProcessor() != nil && s.sessionService.GetProcessor().IsProcessing(sess.ID) {
		writeError(w, http.StatusConflict, errkind.Busy, "a turn is already in flight for this session")
		return
	}

	// The turn outlives this request; it runs on a detached context and is
	// cancelled only via /interrupt.
	go func() {
		if _, _, err := s.orchestrator.HandleQuery(context.Background(), sess.ID, req.Content, req.Model); err != nil {
			logging.Logger.Warn().Err(err).Str("sessionID", sess.ID).Msg("prompt turn failed")
		}
	}()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": sess.ID,
		"message":   "prompt accepted; events stream via /events",
	})
}

// interrupt aborts the session's in-flight turn.
func (s *Server) interrupt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	interrupted, err := s.sessionService.Interrupt(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"interrupted": interrupted,
	})
}

func (s *Server) listChildren(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	children, err := s.sessionService.GetChildren(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	out := make([]sessionSummary, 0, len(children))
	for _, child := range children {
		out = append(out, summarize(child))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) forkSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req struct {
		MessageID string `json:"messageID"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	child, err := s.sessionService.Fork(r.Context(), sess.ID, req.MessageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

func (s *Server) sessionDiff(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	diffs, err := s.sessionService.GetDiffs(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	if diffs == nil {
		diffs = []types.FileDiff{}
	}
	writeJSON(w, http.StatusOK, diffs)
}

func (s *Server) sessionTodos(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	todos, err := s.sessionService.GetTodos(r.Context(), sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

// lookupSession resolves the {id} route param, writing the 404 itself.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*types.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessionService.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || sess == nil {
		writeError(w, http.StatusNotFound, errkind.Input, "session not found: "+id)
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return nil, false
	}
	return sess, true
}
