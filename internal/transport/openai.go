package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAITransport bridges the reducer directly to the OpenAI chat
// completion API, translating streamed deltas into chat response events.
// Useful for running the core without a backend in between.
type OpenAITransport struct {
	client *openai.Client
	model  string
	log    *logger.Logger
}

// NewOpenAI creates an OpenAI bridge transport.
func NewOpenAI(apiKey, modelName string, log *logger.Logger) (*OpenAITransport, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	return &OpenAITransport{
		client: openai.NewClient(apiKey),
		model:  modelName,
		log:    log,
	}, nil
}

// Open starts a streaming completion and feeds it to the callbacks as
// events: a conversation id on the first turn, a message id, text deltas
// and a final usage estimate.
func (t *OpenAITransport) Open(ctx context.Context, req *model.ChatRequest, cb Callbacks) (Handle, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	for _, entry := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(entry.Role),
			Content: entry.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := t.client.CreateChatCompletionStream(streamCtx, openai.ChatCompletionRequest{
		Model:    t.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}

	go t.readLoop(streamCtx, stream, req, cb)

	return HandleFunc(cancel), nil
}

func (t *OpenAITransport) readLoop(ctx context.Context, stream *openai.ChatCompletionStream, req *model.ChatRequest, cb Callbacks) {
	defer stream.Close()
	defer cb.OnClose()

	// A backend would assign these on first persistence; the bridge plays
	// that role itself.
	if req.Context.ConversationID == "" {
		cb.OnEvent(model.ConversationIDEvent{ConversationID: uuid.Must(uuid.NewV7()).String()})
	}
	cb.OnEvent(model.MessageIDEvent{MessageID: uuid.Must(uuid.NewV7()).String()})

	var content string
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				cb.OnError(fmt.Errorf("completion stream failed: %w", err))
			}
			return
		}

		if len(response.Choices) > 0 {
			delta := response.Choices[0].Delta.Content
			if delta != "" {
				content += delta
				cb.OnEvent(model.TextEvent{Text: delta})
			}
		}
	}

	// OpenAI streaming carries no token counts; estimate from length.
	cb.OnEvent(model.UsageEvent{Usage: model.UsageStats{
		OutputTokens: len(content) / 4,
		Model:        t.model,
	}})
}
