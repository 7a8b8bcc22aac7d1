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

// Gemini adapts the Google Generative Language API. The assistant role
// maps to "model", the system message travels as systemInstruction, and
// generation limits live under generationConfig.
type Gemini struct {
	cfg config.ProviderConfig
}

// NewGemini creates a Gemini adapter
func NewGemini(cfg config.ProviderConfig) *Gemini {
	return &Gemini{cfg: cfg}
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) IsConfigured() bool { return p.cfg.APIKey != "" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *Gemini) buildRequest(req models.CompletionRequest) (geminiRequest, string) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	var out geminiRequest
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case models.RoleAssistant:
			out.Contents = append(out.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	out.GenerationConfig.MaxOutputTokens = req.MaxTokens
	out.GenerationConfig.Temperature = req.Temperature
	return out, model
}

func (p *Gemini) post(ctx context.Context, url string, body geminiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := sharedHTTPClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

// Complete performs a single-shot completion
func (p *Gemini) Complete(ctx context.Context, req models.CompletionRequest) (*models.CompletionResult, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body, model := p.buildRequest(req)
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.cfg.BaseURL, model)
	resp, err := p.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var text strings.Builder
	if len(result.Candidates) > 0 {
		for _, part := range result.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyCompletion
	}

	usage := models.TokenUsage{}
	if result.UsageMetadata != nil {
		usage = models.TokenUsage{
			PromptTokens:     result.UsageMetadata.PromptTokenCount,
			CompletionTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      result.UsageMetadata.TotalTokenCount,
		}
	}

	return &models.CompletionResult{
		Text:     text.String(),
		Usage:    usage,
		Model:    model,
		Provider: p.Name(),
	}, nil
}

// Stream performs a streaming completion using alt=sse framing
func (p *Gemini) Stream(ctx context.Context, req models.CompletionRequest) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent, 16)

	go func() {
		defer close(events)

		if !p.IsConfigured() {
			emit(ctx, events, models.StreamEvent{Kind: models.StreamError, Error: ErrNotConfigured.Error(), Provider: p.Name()})
			return
		}

		body, model := p.buildRequest(req)
		url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.cfg.BaseURL, model)
		resp, err := p.post(ctx, url, body)
		if err != nil {
			emit(ctx, events, models.StreamEvent{Kind: models.StreamError, Error: err.Error(), Provider: p.Name()})
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
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

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
				continue
			}

			if chunk.UsageMetadata != nil {
				usage = &models.TokenUsage{
					PromptTokens:     chunk.UsageMetadata.PromptTokenCount,
					CompletionTokens: chunk.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      chunk.UsageMetadata.TotalTokenCount,
				}
			}

			if len(chunk.Candidates) > 0 {
				for _, part := range chunk.Candidates[0].Content.Parts {
					if part.Text == "" {
						continue
					}
					emitted.WriteString(part.Text)
					if !emit(ctx, events, models.StreamEvent{Kind: models.StreamContent, Content: part.Text, Provider: p.Name()}) {
						return
					}
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
		}
		emit(ctx, events, models.StreamEvent{Kind: models.StreamDone, Usage: usage, Provider: p.Name()})
	}()

	return events
}
