package event

import "github.com/arborio/agentcore/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is the data for session.updated events.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData is the data for session.deleted events.
type SessionDeletedData struct {
	Info *types.Session `json:"info"`
}

// SessionDiffData is the data for session.diff events, published whenever
// an edit-like tool updates a session's accumulated file diff summary.
type SessionDiffData struct {
	SessionID string           `json:"sessionID"`
	Diff      []types.FileDiff `json:"diff"`
}

// SessionCompactedData is the data for session.compacted events.
type SessionCompactedData struct {
	SessionID string `json:"sessionID"`
}

// SessionErrorData is the data for session.error events.
type SessionErrorData struct {
	SessionID string              `json:"sessionID,omitempty"`
	Error     *types.MessageError `json:"error,omitempty"`
}

// UserQueryData is the data for user_query events, the trigger of the
// default agent-loop rule.
type UserQueryData struct {
	SessionID string          `json:"sessionID"`
	Content   string          `json:"content"`
	Model     *types.ModelRef `json:"model,omitempty"`
}

// MessageCreatedData is the data for message.created events.
type MessageCreatedData struct {
	Info *types.Message `json:"info"`
}

// MessageUpdatedData is the data for message.updated events.
type MessageUpdatedData struct {
	Info *types.Message `json:"info"`
}

// MessageRemovedData is the data for message.removed events.
type MessageRemovedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// MessagePartUpdatedData is the data for message.part.updated events.
// Delta carries the incremental text while a part streams.
type MessagePartUpdatedData struct {
	Part  types.Part `json:"part"`
	Delta string     `json:"delta,omitempty"`
}

// TodoUpdatedData is the data for session.todo_updated events.
type TodoUpdatedData struct {
	SessionID string           `json:"sessionID"`
	Todos     []types.TodoInfo `json:"todos"`
}

// BackgroundTaskData is the data for background_task.completed/failed
// events published when a child-session loop finishes.
type BackgroundTaskData struct {
	SessionID      string `json:"sessionID"` // parent session
	ChildSessionID string `json:"childSessionID"`
	Output         string `json:"output,omitempty"`
	Error          string `json:"error,omitempty"`
}

// EnvSwitchedData is the data for environment.switched events, summarizing
// what changed across the switch.
type EnvSwitchedData struct {
	EnvDir      string `json:"envDir"`
	ToolsBefore int    `json:"toolsBefore"`
	ToolsAfter  int    `json:"toolsAfter"`
	MCPBefore   int    `json:"mcpBefore"`
	MCPAfter    int    `json:"mcpAfter"`
	Model       string `json:"model,omitempty"`
}
