package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicTransport bridges the reducer directly to the Anthropic Messages
// API, translating streamed deltas into chat response events.
type AnthropicTransport struct {
	client *anthropic.Client
	model  string
	log    *logger.Logger
}

// NewAnthropic creates an Anthropic bridge transport.
func NewAnthropic(apiKey, modelName string, log *logger.Logger) (*AnthropicTransport, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	return &AnthropicTransport{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  modelName,
		log:    log,
	}, nil
}

// Open starts a streaming message and feeds it to the callbacks as events.
func (t *AnthropicTransport) Open(ctx context.Context, req *model.ChatRequest, cb Callbacks) (Handle, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, entry := range req.History {
		messages = append(messages, messageParam(string(entry.Role), entry.Content))
	}
	messages = append(messages, messageParam(string(model.RoleUser), req.Message))

	streamCtx, cancel := context.WithCancel(ctx)

	stream := t.client.Messages.NewStreaming(streamCtx, anthropic.MessageNewParams{
		Model:     anthropic.F(t.model),
		MaxTokens: anthropic.F(int64(4096)),
		Messages:  anthropic.F(messages),
	})

	go func() {
		defer cb.OnClose()

		if req.Context.ConversationID == "" {
			cb.OnEvent(model.ConversationIDEvent{ConversationID: uuid.Must(uuid.NewV7()).String()})
		}
		cb.OnEvent(model.MessageIDEvent{MessageID: uuid.Must(uuid.NewV7()).String()})

		var outputTokens int
		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case anthropic.MessageStreamEventTypeContentBlockDelta:
				if delta, ok := event.Delta.(anthropic.ContentBlockDeltaEventDelta); ok && delta.Type == "text_delta" && delta.Text != "" {
					cb.OnEvent(model.TextEvent{Text: delta.Text})
				}
			case anthropic.MessageStreamEventTypeMessageDelta:
				outputTokens = int(event.Usage.OutputTokens)
			}
		}

		if err := stream.Err(); err != nil {
			if streamCtx.Err() == nil && !errors.Is(err, context.Canceled) {
				cb.OnError(fmt.Errorf("message stream failed: %w", err))
			}
			return
		}

		cb.OnEvent(model.UsageEvent{Usage: model.UsageStats{
			OutputTokens: outputTokens,
			Model:        t.model,
		}})
	}()

	return HandleFunc(cancel), nil
}

func messageParam(role, content string) anthropic.MessageParam {
	return anthropic.MessageParam{
		Role: anthropic.F(anthropic.MessageParamRole(role)),
		Content: anthropic.F([]anthropic.ContentBlockParamUnion{
			anthropic.TextBlockParam{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(content),
			},
		}),
	}
}
