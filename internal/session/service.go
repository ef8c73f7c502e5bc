package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/internal/tool"
	"github.com/arborio/agentcore/pkg/types"
)

// InterruptNotice is the synthetic user message appended after an
// interrupt, turning the abort into a clean re-entry point for the next
// turn.
const InterruptNotice = "[Session interrupted by user]"

// ErrSessionBusy is returned when a prompt arrives for a session whose
// previous turn is still running. Busy sessions reject rather than queue.
var ErrSessionBusy = errors.New("session busy: a turn is already in flight")

// Service owns the session store and drives turns through the processor.
type Service struct {
	storage   *storage.Storage
	processor *Processor
}

// NewService creates a session service without a processor; prompts served
// through it fail until NewServiceWithProcessor is used instead.
func NewService(store *storage.Storage) *Service {
	return &Service{storage: store}
}

// NewServiceWithProcessor creates a session service wired to a full
// agent-loop processor.
func NewServiceWithProcessor(
	store *storage.Storage,
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	defaultProviderID string,
	defaultModelID string,
) *Service {
	return &Service{
		storage:   store,
		processor: NewProcessor(providerReg, toolReg, store, defaultProviderID, defaultModelID),
	}
}

// GetProcessor returns the session processor.
func (s *Service) GetProcessor() *Processor {
	return s.processor
}

// Create creates a session. A caller-supplied id adopts that identity and
// is idempotent: when the id already exists the stored session is returned
// unchanged.
func (s *Service) Create(ctx context.Context, id, title string) (*types.Session, error) {
	if id != "" {
		var existing types.Session
		if err := s.storage.Get(ctx, []string{"session", id}, &existing); err == nil {
			return &existing, nil
		}
	} else {
		id = uuid.NewString()
	}
	if title == "" {
		title = "New Session"
	}

	now := time.Now().UnixMilli()
	session := &types.Session{
		ID:    id,
		Title: title,
		Time:  types.SessionTime{Created: now, Updated: now},
	}

	if err := s.storage.Put(ctx, []string{"session", id}, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	event.Publish(event.Event{
		Type:      event.SessionCreated,
		SessionID: id,
		Data:      event.SessionCreatedData{Info: session},
	})
	return session, nil
}

// Get retrieves a session by id, or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	if err := s.storage.Get(ctx, []string{"session", sessionID}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Update applies a patch to a session and bumps its updated timestamp.
func (s *Service) Update(ctx context.Context, sessionID string, updates map[string]any) (*types.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if title, ok := updates["title"].(string); ok {
		session.Title = title
	}
	if meta, ok := updates["metadata"].(map[string]string); ok {
		if session.Metadata == nil {
			session.Metadata = make(map[string]string)
		}
		for k, v := range meta {
			session.Metadata[k] = v
		}
	}

	if err := s.save(ctx, session); err != nil {
		return nil, err
	}

	event.Publish(event.Event{
		Type:      event.SessionUpdated,
		SessionID: sessionID,
		Data:      event.SessionUpdatedData{Info: session},
	})
	return session, nil
}

// Delete removes a session and its messages, parts, and todos.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	messages, _ := s.GetMessages(ctx, sessionID)
	for _, msg := range messages {
		parts, _ := s.GetParts(ctx, msg.ID)
		for _, part := range parts {
			s.storage.Delete(ctx, []string{"part", msg.ID, part.PartID()})
		}
		s.storage.Delete(ctx, []string{"message", sessionID, msg.ID})
	}
	s.storage.Delete(ctx, []string{"todo", sessionID})

	if err := s.storage.Delete(ctx, []string{"session", sessionID}); err != nil {
		return err
	}

	event.Publish(event.Event{
		Type:      event.SessionDeleted,
		SessionID: sessionID,
		Data:      event.SessionDeletedData{Info: session},
	})
	return nil
}

// List returns every session, most recently updated first.
func (s *Service) List(ctx context.Context) ([]*types.Session, error) {
	var sessions []*types.Session
	err := s.storage.Scan(ctx, []string{"session"}, func(key string, data json.RawMessage) error {
		var session types.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		sessions = append(sessions, &session)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Time.Updated > sessions[j].Time.Updated
	})
	return sessions, nil
}

// GetChildren returns the sessions forked from sessionID.
func (s *Service) GetChildren(ctx context.Context, sessionID string) ([]*types.Session, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var children []*types.Session
	for _, sess := range all {
		if sess.ParentID != nil && *sess.ParentID == sessionID {
			children = append(children, sess)
		}
	}
	return children, nil
}

// Fork creates a child session carrying the parent's messages up to and
// including messageID (or all of them when messageID is empty).
func (s *Service) Fork(ctx context.Context, sessionID, messageID string) (*types.Session, error) {
	parent, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	child, err := s.Create(ctx, "", parent.Title+" (fork)")
	if err != nil {
		return nil, err
	}
	child.ParentID = &sessionID

	messages, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		copied := *msg
		copied.SessionID = child.ID
		if err := s.AddMessage(ctx, child.ID, &copied); err != nil {
			return nil, err
		}
		if messageID != "" && msg.ID == messageID {
			break
		}
	}

	if err := s.save(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}

// Interrupt aborts sessionID's in-flight turn. The partial assistant
// message the loop has streamed so far stays persisted, and a synthetic
// user message records the interrupt so the next turn sees it in history.
// Interrupting an idle session is a no-op returning false.
func (s *Service) Interrupt(ctx context.Context, sessionID string) (bool, error) {
	if s.processor == nil || !s.processor.IsProcessing(sessionID) {
		return false, nil
	}

	s.processor.Abort(sessionID)

	notice := &types.Message{
		ID:        generateID(),
		SessionID: sessionID,
		Role:      "user",
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := s.AddMessage(ctx, sessionID, notice); err != nil {
		return true, err
	}
	part := &types.TextPart{
		ID:        generateID(),
		SessionID: sessionID,
		MessageID: notice.ID,
		Type:      "text",
		Text:      InterruptNotice,
	}
	if err := s.storage.Put(ctx, []string{"part", notice.ID, part.ID}, part); err != nil {
		return true, err
	}

	return true, nil
}

// GetDiffs returns the accumulated file diffs of a session.
func (s *Service) GetDiffs(ctx context.Context, sessionID string) ([]types.FileDiff, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Summary.Diffs, nil
}

// GetTodos returns the session's todo list, the same store the
// todoread/todowrite tools mutate.
func (s *Service) GetTodos(ctx context.Context, sessionID string) ([]types.TodoInfo, error) {
	var todos []types.TodoInfo
	err := s.storage.Get(ctx, []string{"todo", sessionID}, &todos)
	if err == storage.ErrNotFound {
		return []types.TodoInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	return todos, nil
}

// AddMessage stores a message under its session and bumps the session's
// updated timestamp.
func (s *Service) AddMessage(ctx context.Context, sessionID string, msg *types.Message) error {
	if err := s.storage.Put(ctx, []string{"message", sessionID, msg.ID}, msg); err != nil {
		return err
	}
	if session, err := s.Get(ctx, sessionID); err == nil {
		s.save(ctx, session)
	}
	return nil
}

// GetMessages returns all messages of a session in storage order (ULID
// message ids sort chronologically).
func (s *Service) GetMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	err := s.storage.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, &msg)
		return nil
	})
	return messages, err
}

// GetParts returns all parts of a message in emission order.
func (s *Service) GetParts(ctx context.Context, messageID string) ([]types.Part, error) {
	var parts []types.Part
	err := s.storage.Scan(ctx, []string{"part", messageID}, func(key string, data json.RawMessage) error {
		part, err := types.UnmarshalPart(data)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	})
	return parts, err
}

// ProcessMessage stores the user message and runs one agent-loop turn. A
// busy session returns ErrSessionBusy without storing anything.
func (s *Service) ProcessMessage(
	ctx context.Context,
	session *types.Session,
	content string,
	model *types.ModelRef,
	onUpdate func(msg *types.Message, parts []types.Part),
) (*types.Message, []types.Part, error) {
	if s.processor == nil {
		return nil, nil, fmt.Errorf("no processor configured")
	}
	if s.processor.IsProcessing(session.ID) {
		return nil, nil, ErrSessionBusy
	}

	userMsg := &types.Message{
		ID:        generateID(),
		SessionID: session.ID,
		Role:      "user",
		Model:     model,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := s.AddMessage(ctx, session.ID, userMsg); err != nil {
		return nil, nil, err
	}
	userPart := &types.TextPart{
		ID:        generateID(),
		SessionID: session.ID,
		MessageID: userMsg.ID,
		Type:      "text",
		Text:      content,
	}
	if err := s.storage.Put(ctx, []string{"part", userMsg.ID, userPart.ID}, userPart); err != nil {
		return nil, nil, err
	}

	var finalMsg *types.Message
	var finalParts []types.Part
	err := s.processor.Process(ctx, session.ID, DefaultAgent(), func(msg *types.Message, parts []types.Part) {
		finalMsg = msg
		finalParts = parts
		if onUpdate != nil {
			onUpdate(msg, parts)
		}
	})
	return finalMsg, finalParts, err
}

func (s *Service) save(ctx context.Context, session *types.Session) error {
	session.Time.Updated = time.Now().UnixMilli()
	return s.storage.Put(ctx, []string{"session", session.ID}, session)
}

// generateID generates a ULID for messages and parts.
func generateID() string {
	return ulid.Make().String()
}
