package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
)

// SSEConfig configures the SSE transport.
type SSEConfig struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
}

// SSETransport posts the chat request to the backend and reads the
// text/event-stream response, decoding each data payload as a tagged event.
type SSETransport struct {
	endpoint string
	token    string
	client   *http.Client
	log      *logger.Logger
}

// NewSSE creates an SSE transport.
func NewSSE(cfg SSEConfig, log *logger.Logger) *SSETransport {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &SSETransport{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   client,
		log:      log,
	}
}

// Open sends the request and starts reading the event stream. The returned
// handle cancels the request context, which closes the response body.
func (t *SSETransport) Open(ctx context.Context, req *model.ChatRequest, cb Callbacks) (Handle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream rejected with status %d", resp.StatusCode)
	}

	go t.readLoop(streamCtx, resp.Body, cb)

	return HandleFunc(cancel), nil
}

func (t *SSETransport) readLoop(ctx context.Context, body io.ReadCloser, cb Callbacks) {
	defer body.Close()
	defer cb.OnClose()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 {
				t.deliver(strings.Join(data, "\n"), cb)
				data = data[:0]
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keepalive
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(payload, " "))
		}
		// "event:" lines are ignored; the kind travels in the payload.
	}

	if len(data) > 0 {
		t.deliver(strings.Join(data, "\n"), cb)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		cb.OnError(fmt.Errorf("stream read failed: %w", err))
	}
}

func (t *SSETransport) deliver(data string, cb Callbacks) {
	ev, err := model.DecodeEvent([]byte(data))
	if err != nil {
		t.log.Warn("dropping undecodable event", zap.Error(err))
		return
	}
	cb.OnEvent(ev)
}
