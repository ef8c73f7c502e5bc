package types

import "github.com/arborio/agentcore/pkg/errkind"

// Message is one record of a conversation. Content lives in the message's
// parts; the record itself carries identity, role, and the model that
// served (or was requested for) the turn.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "system" | "user" | "assistant" | "tool"
	Time      MessageTime `json:"time"`

	// User-specific fields
	Model *ModelRef `json:"model,omitempty"` // requested model for the turn

	// Assistant-specific fields
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Finish     *string       `json:"finish,omitempty"`
	Truncated  bool          `json:"truncated,omitempty"` // iteration budget exhausted
	IsSummary  bool          `json:"isSummary,omitempty"` // compaction summary message
	Cost       float64       `json:"cost,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Error      *MessageError `json:"error,omitempty"`
}

// MessageTime contains timestamps for a message.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ModelRef references a specific model from a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenUsage contains token usage statistics for a message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitempty"`
}

// CacheUsage contains cache hit/write statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// MessageError represents an error that occurred during message processing.
// Type carries a spec §7 errkind.Kind value (or a finer-grained legacy tag
// such as "api"/"auth"/"output_length" predating the shared taxonomy).
type MessageError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds a MessageError tagged with an errkind.Kind.
func NewError(kind errkind.Kind, message string) *MessageError {
	return &MessageError{Type: string(kind), Message: message}
}

// NewUnknownError builds a MessageError for a failure that doesn't map to a
// more specific errkind.Kind (spec §7 "internal": invariant violation, bug;
// surfaced as error with a generic message).
func NewUnknownError(message string) *MessageError {
	return NewError(errkind.Internal, message)
}
