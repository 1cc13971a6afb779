// Package llm provides LLM integration via the Ollama API, including the
// background worker that keeps the voice pipeline responsive during
// multi-second completions.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/malcolmhoward/dawn-sub004/internal/conversation"
)

// Config holds LLM client configuration.
type Config struct {
	Host        string
	Model       string
	VisionModel string // used when a request carries image data; falls back to Model
	Verbose     bool
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Request is one completion request. Messages are a snapshot of the
// conversation log; Images attach to the final user message for vision
// models.
type Request struct {
	Messages []conversation.Message
	Images   [][]byte
}

// Client talks to Ollama. Conversation history lives in the session's log,
// not here; the client is stateless per request.
type Client struct {
	client      *api.Client
	model       string
	visionModel string
	verbose     bool
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// NewClient creates an Ollama client with connection pooling tuned for
// repeated low-latency requests to a local server.
func NewClient(cfg *Config) (*Client, error) {
	host := strings.TrimSuffix(cfg.Host, "/")
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 150 // keep responses short for voice output
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		client:      api.NewClient(parsedURL, httpClient),
		model:       cfg.Model,
		visionModel: visionModel,
		verbose:     cfg.Verbose,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}, nil
}

// Timeout returns the per-call HTTP timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// buildMessages converts the snapshot into API messages, attaching any
// images to the last user message.
func (c *Client) buildMessages(req Request) []api.Message {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	if len(req.Images) > 0 {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == "user" {
				images := make([]api.ImageData, len(req.Images))
				for j, img := range req.Images {
					images[j] = api.ImageData(img)
				}
				messages[i].Images = images
				break
			}
		}
	}
	return messages
}

func (c *Client) modelFor(req Request) string {
	if len(req.Images) > 0 {
		return c.visionModel
	}
	return c.model
}

// Stream sends the request and streams the response, invoking onSentence
// exactly once per completed sentence. Cancelling ctx aborts the transfer;
// the partially assembled text is discarded by the caller. Returns the
// joined response text.
func (c *Client) Stream(ctx context.Context, req Request, onSentence func(sentence string)) (string, error) {
	stream := true
	var assembler SentenceAssembler
	var full strings.Builder

	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.modelFor(req),
		Messages: c.buildMessages(req),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}, func(resp api.ChatResponse) error {
		chunk := resp.Message.Content
		full.WriteString(chunk)
		if onSentence != nil {
			for _, s := range assembler.Push(chunk) {
				onSentence(s)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat stream failed: %w", err)
	}

	// Unterminated tail still gets spoken
	if tail := assembler.Flush(); tail != "" && onSentence != nil {
		onSentence(tail)
	}

	return strings.TrimSpace(full.String()), nil
}

// Complete sends the request in single-shot mode and returns the full
// response.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	stream := false
	var response api.ChatResponse

	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.modelFor(req),
		Messages: c.buildMessages(req),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": c.temperature,
			"num_predict": c.maxTokens,
		},
	}, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}

	return strings.TrimSpace(response.Message.Content), nil
}

// HealthCheck verifies the Ollama server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("cannot reach Ollama: %w", err)
	}
	return nil
}
