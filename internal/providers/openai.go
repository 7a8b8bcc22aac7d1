package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"everkind/internal/config"
	"everkind/internal/models"
)

// OpenAI adapts the OpenAI chat completions API. Roles map straight
// through; the system message is sent inline as the first message.
type OpenAI struct {
	cfg config.ProviderConfig
}

// NewOpenAI creates an OpenAI adapter
func NewOpenAI(cfg config.ProviderConfig) *OpenAI {
	return &OpenAI{cfg: cfg}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) IsConfigured() bool { return p.cfg.APIKey != "" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (p *OpenAI) buildRequest(req models.CompletionRequest, stream bool) openAIRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	msgs := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openAIMessage{Role: m.Role, Content: m.Content})
	}
	return openAIRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (p *OpenAI) post(ctx context.Context, body openAIRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := sharedHTTPClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

// Complete performs a single-shot completion
func (p *OpenAI) Complete(ctx context.Context, req models.CompletionRequest) (*models.CompletionResult, error) {
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
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage openAIUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	return &models.CompletionResult{
		Text: result.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
		Model:    result.Model,
		Provider: p.Name(),
	}, nil
}

// Stream performs a streaming completion over SSE
func (p *OpenAI) Stream(ctx context.Context, req models.CompletionRequest) <-chan models.StreamEvent {
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
		// 1MB buffer for large SSE chunks (default is 64KB)
		const maxCapacity = 1024 * 1024
		scanner.Buffer(make([]byte, maxCapacity), maxCapacity)

		var emitted strings.Builder
		var usage *models.TokenUsage

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
			if data == "[DONE]" {
				break
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
				Usage *openAIUsage `json:"usage"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			if chunk.Usage != nil {
				usage = &models.TokenUsage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				content := chunk.Choices[0].Delta.Content
				emitted.WriteString(content)
				if !emit(ctx, events, models.StreamEvent{Kind: models.StreamContent, Content: content, Provider: p.Name()}) {
					return
				}
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

		if usage == nil {
			usage = estimatedUsage(emitted.String())
			log.Printf("[OPENAI] Stream reported no usage, estimated %d completion tokens", usage.CompletionTokens)
		}
		emit(ctx, events, models.StreamEvent{Kind: models.StreamDone, Usage: usage, Provider: p.Name()})
	}()

	return events
}
