// Package llm adapts chat requests onto the remote completion endpoint and
// relays the response, either aggregated or as an ordered incremental
// stream.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pocketchat-dev/pocketchat/backend/internal/config"
	"github.com/pocketchat-dev/pocketchat/backend/internal/model/chat"
)

// ErrUpstream classifies failures talking to the completion endpoint. Its
// text is safe to surface; the underlying detail is for logs only.
var ErrUpstream = errors.New("chat completion failed")

// DeltaFunc receives one text fragment. Returning an error aborts the relay.
type DeltaFunc func(delta string) error

// Service forwards chat requests to an OpenAI-compatible completion
// endpoint (OpenRouter by default).
type Service struct {
	client *openai.Client
	cfg    config.ChatConfig
}

// NewService builds the adapter from configuration.
func NewService(cfg config.ChatConfig) (*Service, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("completion endpoint credentials missing: set OPENROUTER_API_KEY and OPENROUTER_MODEL")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Service{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

// StreamingEnabled indicates whether the HTTP surface should stream.
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Complete issues one non-streaming request and returns the first choice's
// message text, or "" when the endpoint returned no choices.
func (s *Service) Complete(ctx context.Context, req chat.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	resp, err := s.client.CreateChatCompletion(ctx, s.buildRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream issues one streaming request and forwards each text delta to
// onDelta in arrival order, buffering no more than a single fragment. It
// returns the concatenation of all deltas once the remote stream ends.
func (s *Service) Stream(ctx context.Context, req chat.Request, onDelta DeltaFunc) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, s.buildRequest(req, true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return full.String(), fmt.Errorf("%w: %v", ErrUpstream, recvErr)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
	}

	return full.String(), nil
}

func (s *Service) buildRequest(req chat.Request, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}
	if s.cfg.Temperature != nil {
		out.Temperature = float32(*s.cfg.Temperature)
	}
	if s.cfg.MaxTokens != nil {
		out.MaxTokens = *s.cfg.MaxTokens
	}
	return out
}
