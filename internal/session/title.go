package session

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/pkg/types"
)

const titleSystemPrompt = `You generate conversation titles. Output only the title.

Rules:
- One line, at most 50 characters
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep technical terms, numbers, and filenames exact
- Drop articles (the, a, an)`

const defaultTitle = "New Session"

// ensureTitle generates a title for a session still carrying the default
// one, from the first user message. Forked sessions keep their inherited
// title.
func (p *Processor) ensureTitle(ctx context.Context, session *types.Session, userMsg *types.Message) {
	if session.ParentID != nil && *session.ParentID != "" {
		return
	}
	if !strings.HasPrefix(session.Title, defaultTitle) {
		return
	}

	content := ""
	if parts, err := p.loadParts(ctx, userMsg.ID); err == nil {
		for _, part := range parts {
			if tp, ok := part.(*types.TextPart); ok {
				content += tp.Text
			}
		}
	}
	if content == "" {
		return
	}

	model, err := p.providerRegistry.DefaultModel()
	if err != nil {
		return
	}
	prov, err := p.providerRegistry.Get(model.ProviderID)
	if err != nil {
		return
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: titleSystemPrompt},
			{Role: schema.User, Content: "Title this conversation:\n\n" + content},
		},
		MaxTokens: 50,
	})
	if err != nil {
		return
	}
	defer stream.Close()

	var title strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		title.WriteString(msg.Content)
	}

	text := firstLine(title.String())
	if text == "" {
		return
	}
	if len(text) > 100 {
		text = text[:97] + "..."
	}

	session.Title = text
	p.saveSession(session)

	event.PublishSync(event.Event{
		Type:      event.SessionUpdated,
		SessionID: session.ID,
		Data:      event.SessionUpdatedData{Info: session},
	})
}

func firstLine(s string) string {
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
