package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"everkind/internal/config"
	"everkind/internal/models"
)

const anthropicVersion = "2023-06-01"

// Anthropic adapts the Anthropic messages API. Unlike OpenAI, the system
// message cannot appear in the message list: it is extracted and sent
// out-of-band in the top-level "system" field.
type Anthropic struct {
	cfg config.ProviderConfig
}

// NewAnthropic creates an Anthropic adapter
func NewAnthropic(cfg config.ProviderConfig) *Anthropic {
	return &Anthropic{cfg: cfg}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) IsConfigured() bool { return p.cfg.APIKey != "" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

func (p *Anthropic) buildRequest(req models.CompletionRequest, stream bool) anthropicRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	var system string
	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		// max_tokens is mandatory for this API
		maxTokens = 1024
	}

	return anthropicRequest{
		Model:       model,
		System:      system,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (p *Anthropic) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/v1/messages", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := sharedHTTPClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

// Complete performs a single-shot completion
func (p *Anthropic) Complete(ctx context.Context, req models.CompletionRequest) (*models.CompletionResult, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}

	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyCompletion
	}

	return &models.CompletionResult{
		Text: text.String(),
		Usage: models.TokenUsage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.InputTokens + result.Usage.OutputTokens,
		},
		Model:    result.Model,
		Provider: p.Name(),
	}, nil
}

// Stream performs a streaming completion. Anthropic SSE frames are typed
// (content_block_delta, message_delta, message_stop, error); only the
// types carrying text or usage matter here.
func (p *Anthropic) Stream(ctx context.Context, req models.CompletionRequest) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent, 16)

	go func() {
		defer close(events)

		if !p.IsConfigured() {
			emit(ctx, events, models.StreamEvent{Kind: models.StreamError, Error: ErrNotConfigured.Error(), Provider: p.Name()})
			return
		}

		resp, err := p.post(ctx, p.buildRequest(req, true))
		if err != nil {
			emit(ctx, events, models.StreamEvent{Kind: models.StreamError, Error: err.Error(), Provider: p.Name()})
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		const maxCapacity = 1024 * 1024
		scanner.Buffer(make([]byte, maxCapacity), maxCapacity)

		var emitted strings.Builder
		inputTokens := 0
		outputTokens := 0

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				emit(ctx, events, models.StreamEvent{Kind: models.StreamError, Error: ctx.Err().Error(), Provider: p.Name()})
				return
			default:
			}

			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			var frame struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
				Message struct {
					Usage struct {
						InputTokens int `json:"input_tokens"`
					} `json:"usage"`
				} `json:"message"`
				Usage struct {
					OutputTokens int `json:"output_tokens"`
				} `json:"usage"`
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				continue
			}

			switch frame.Type {
			case "message_start":
				inputTokens = frame.Message.Usage.InputTokens
			case "content_block_delta":
				if frame.Delta.Type == "text_delta" && frame.Delta.Text != "" {
					emitted.WriteString(frame.Delta.Text)
					if !emit(ctx, events, models.StreamEvent{Kind: models.StreamContent, Content: frame.Delta.Text, Provider: p.Name()}) {
						return
					}
				}
			case "message_delta":
				if frame.Usage.OutputTokens > 0 {
					outputTokens = frame.Usage.OutputTokens
				}
			case "error":
				emit(ctx, events, models.StreamEvent{Kind: models.StreamError, Error: frame.Error.Message, Provider: p.Name()})
				return
			case "message_stop":
				// terminal frame; usage already collected
			}
		}

		if err := scanner.Err(); err != nil {
			emit(ctx, events, models.StreamEvent{Kind: models.StreamError, Error: fmt.Sprintf("stream read failed: %v", err), Provider: p.Name()})
			return
		}
		if emitted.Len() == 0 {
			emit(ctx, events, models.StreamEvent{Kind: models.StreamError, Error: ErrEmptyCompletion.Error(), Provider: p.Name()})
			return
		}

		usage := &models.TokenUsage{
			PromptTokens:     inputTokens,
			CompletionTokens: outputTokens,
			TotalTokens:      inputTokens + outputTokens,
		}
		if outputTokens == 0 {
			usage = estimatedUsage(emitted.String())
		}
		emit(ctx, events, models.StreamEvent{Kind: models.StreamDone, Usage: usage, Provider: p.Name()})
	}()

	return events
}
