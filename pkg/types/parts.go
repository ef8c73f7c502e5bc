package types

import "encoding/json"

// Part is one typed fragment of a message. Parts are appended in emission
// order while a response streams and finalized at completion.
type Part interface {
	PartType() string
	PartID() string
	PartSessionID() string
	PartMessageID() string
}

// PartTime brackets a part's streaming window.
type PartTime struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// TextPart is user-visible text.
type TextPart struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID"`
	Type      string         `json:"type"` // always "text"
	Text      string         `json:"text"`
	Time      PartTime       `json:"time,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (p *TextPart) PartType() string      { return "text" }
func (p *TextPart) PartID() string        { return p.ID }
func (p *TextPart) PartSessionID() string { return p.SessionID }
func (p *TextPart) PartMessageID() string { return p.MessageID }

// ReasoningPart is model-emitted chain-of-thought, distinct from text.
type ReasoningPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	MessageID string   `json:"messageID"`
	Type      string   `json:"type"` // always "reasoning"
	Text      string   `json:"text"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *ReasoningPart) PartType() string      { return "reasoning" }
func (p *ReasoningPart) PartID() string        { return p.ID }
func (p *ReasoningPart) PartSessionID() string { return p.SessionID }
func (p *ReasoningPart) PartMessageID() string { return p.MessageID }

// ToolTime brackets a tool call from emission to result.
type ToolTime struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// ToolState is the mutable execution state of a tool call as it moves
// through pending -> running -> completed|error.
type ToolState struct {
	Status   string         `json:"status"`
	Input    map[string]any `json:"input,omitempty"`
	Raw      string         `json:"raw,omitempty"` // accumulated argument JSON while streaming
	Output   string         `json:"output,omitempty"`
	Title    string         `json:"title,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Time     ToolTime       `json:"time"`
}

// ToolPart records one tool call and, once executed, its result.
type ToolPart struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionID"`
	MessageID string    `json:"messageID"`
	Type      string    `json:"type"` // always "tool"
	CallID    string    `json:"callID"`
	Tool      string    `json:"tool"`
	State     ToolState `json:"state"`
}

func (p *ToolPart) PartType() string      { return "tool" }
func (p *ToolPart) PartID() string        { return p.ID }
func (p *ToolPart) PartSessionID() string { return p.SessionID }
func (p *ToolPart) PartMessageID() string { return p.MessageID }

// CompactionPart marks a compaction summary injected into history in place
// of the messages it replaced.
type CompactionPart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // always "compaction"
	Summary   string `json:"summary"`
	Auto      bool   `json:"auto,omitempty"`
}

func (p *CompactionPart) PartType() string      { return "compaction" }
func (p *CompactionPart) PartID() string        { return p.ID }
func (p *CompactionPart) PartSessionID() string { return p.SessionID }
func (p *CompactionPart) PartMessageID() string { return p.MessageID }

// FilePart is a generic file attachment.
type FilePart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // always "file"
	Filename  string `json:"filename"`
	Mime      string `json:"mime"`
	URL       string `json:"url"`
}

func (p *FilePart) PartType() string      { return "file" }
func (p *FilePart) PartID() string        { return p.ID }
func (p *FilePart) PartSessionID() string { return p.SessionID }
func (p *FilePart) PartMessageID() string { return p.MessageID }

// ImagePart is an inline or referenced image.
type ImagePart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // always "image"
	Mime      string `json:"mime"`
	URL       string `json:"url"`
}

func (p *ImagePart) PartType() string      { return "image" }
func (p *ImagePart) PartID() string        { return p.ID }
func (p *ImagePart) PartSessionID() string { return p.SessionID }
func (p *ImagePart) PartMessageID() string { return p.MessageID }

// AudioPart is an inline or referenced audio clip.
type AudioPart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // always "audio"
	Mime      string `json:"mime"`
	URL       string `json:"url"`
}

func (p *AudioPart) PartType() string      { return "audio" }
func (p *AudioPart) PartID() string        { return p.ID }
func (p *AudioPart) PartSessionID() string { return p.SessionID }
func (p *AudioPart) PartMessageID() string { return p.MessageID }

// UnmarshalPart decodes a stored part into its concrete type.
func UnmarshalPart(data []byte) (Part, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	var part Part
	switch probe.Type {
	case "reasoning":
		part = &ReasoningPart{}
	case "tool":
		part = &ToolPart{}
	case "compaction":
		part = &CompactionPart{}
	case "file":
		part = &FilePart{}
	case "image":
		part = &ImagePart{}
	case "audio":
		part = &AudioPart{}
	default:
		part = &TextPart{}
	}
	if err := json.Unmarshal(data, part); err != nil {
		return nil, err
	}
	return part, nil
}
