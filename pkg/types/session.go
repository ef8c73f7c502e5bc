// Package types holds the data model shared across the agent server: the
// session, message, and part records the store persists and the events and
// wire payloads are built from.
package types

// Session is one conversation: an id, a title, timestamps, and soft
// metadata. Messages live in the store keyed by the session id.
type Session struct {
	ID       string            `json:"id"`
	ParentID *string           `json:"parentID,omitempty"` // set on forked sessions
	Title    string            `json:"title"`
	Summary  SessionSummary    `json:"summary"`
	Time     SessionTime       `json:"time"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SessionSummary accumulates the file changes tools reported during the
// session.
type SessionSummary struct {
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Files     int        `json:"files"`
	Diffs     []FileDiff `json:"diffs,omitempty"`
}

// FileDiff is one file's recorded change.
type FileDiff struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Before    string `json:"before,omitempty"`
	After     string `json:"after,omitempty"`
}

// SessionTime carries creation/update timestamps in unix millis. Updated
// never decreases; every store mutation bumps it.
type SessionTime struct {
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	Compacting *int64 `json:"compacting,omitempty"`
}

// TodoInfo is one entry of a session's todo list, mutated by the
// todowrite/todoread tools.
type TodoInfo struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"` // "pending" | "in_progress" | "completed"
	Priority string `json:"priority,omitempty"`
}
