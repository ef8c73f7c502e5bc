package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/pkg/types"
)

// CompactionConfig controls when and how old messages are folded into a
// summary.
type CompactionConfig struct {
	// MinMessagesToKeep is how many recent messages stay verbatim.
	MinMessagesToKeep int
	// SummaryMaxTokens caps the generated summary.
	SummaryMaxTokens int
}

// DefaultCompactionConfig is the compaction policy applied by the loop.
var DefaultCompactionConfig = CompactionConfig{
	MinMessagesToKeep: 4,
	SummaryMaxTokens:  2000,
}

const compactionSystemPrompt = "You summarize a conversation so it can continue with only the summary " +
	"as context. Preserve what was accomplished, work in progress, key user requests, and next steps. " +
	"Be concise but complete enough that work continues seamlessly."

// compactMessages summarizes everything but the most recent messages and
// records the summary as a compaction part on a summary message.
func (p *Processor) compactMessages(
	ctx context.Context,
	sessionID string,
	messages []*types.Message,
) error {
	if len(messages) <= DefaultCompactionConfig.MinMessagesToKeep {
		return nil
	}
	toCompact := messages[:len(messages)-DefaultCompactionConfig.MinMessagesToKeep]

	session, err := p.loadSession(sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	session.Time.Compacting = &now
	p.saveSession(session)
	defer func() {
		session.Time.Compacting = nil
		p.saveSession(session)
	}()

	summary, err := p.generateSummary(ctx, toCompact)
	if err != nil {
		return err
	}

	// The summary's ID extends the last compacted message's ID, so by key it
	// sorts right after that message and ahead of the kept ones.
	summaryMsg := &types.Message{
		ID:        toCompact[len(toCompact)-1].ID + "0",
		SessionID: sessionID,
		Role:      "assistant",
		IsSummary: true,
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := p.storage.Put(ctx, []string{"message", sessionID, summaryMsg.ID}, summaryMsg); err != nil {
		return err
	}
	part := &types.CompactionPart{
		ID:        generatePartID(),
		SessionID: sessionID,
		MessageID: summaryMsg.ID,
		Type:      "compaction",
		Summary:   summary,
		Auto:      true,
	}
	if err := p.savePart(ctx, summaryMsg.ID, part); err != nil {
		return err
	}

	// Drop the summarized messages so the next prompt build starts from the
	// summary.
	for _, msg := range toCompact {
		parts, _ := p.loadParts(ctx, msg.ID)
		for _, pt := range parts {
			p.storage.Delete(ctx, []string{"part", msg.ID, pt.PartID()})
		}
		p.storage.Delete(ctx, []string{"message", sessionID, msg.ID})
	}

	event.PublishSync(event.Event{
		Type:      event.SessionCompacted,
		SessionID: sessionID,
		Data:      event.SessionCompactedData{SessionID: sessionID},
	})
	return nil
}

// generateSummary runs the summarizer model over the given messages.
func (p *Processor) generateSummary(ctx context.Context, messages []*types.Message) (string, error) {
	model, err := p.providerRegistry.DefaultModel()
	if err != nil {
		return "", err
	}
	prov, err := p.providerRegistry.Get(model.ProviderID)
	if err != nil {
		return "", err
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: compactionSystemPrompt},
			{Role: schema.User, Content: p.transcript(ctx, messages)},
		},
		MaxTokens: DefaultCompactionConfig.SummaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var summary strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		summary.WriteString(msg.Content)
	}
	return summary.String(), nil
}

// transcript renders messages as plain text for the summarizer, with tool
// outputs truncated.
func (p *Processor) transcript(ctx context.Context, messages []*types.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(msg.Role))
		parts, err := p.loadParts(ctx, msg.ID)
		if err != nil {
			continue
		}
		for _, part := range parts {
			switch pt := part.(type) {
			case *types.TextPart:
				b.WriteString(pt.Text)
				b.WriteString("\n")
			case *types.CompactionPart:
				b.WriteString(pt.Summary)
				b.WriteString("\n")
			case *types.ToolPart:
				fmt.Fprintf(&b, "[tool %s]\n", pt.Tool)
				output := pt.State.Output
				if len(output) > 500 {
					output = output[:500] + "..."
				}
				if output != "" {
					b.WriteString(output)
					b.WriteString("\n")
				}
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// estimateTokens approximates token count at four characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}
