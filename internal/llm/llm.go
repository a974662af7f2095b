// Package llm suggests issue metadata from free-text descriptions via the
// Anthropic API. The client is optional: commands fall back to keyword
// heuristics when no API key is configured.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cityfix/cityfix/internal/models"
)

// Suggestion holds the LLM-proposed classification for a report.
type Suggestion struct {
	Category models.Category `json:"category"`
	Severity int             `json:"severity"`
}

// Client wraps the Anthropic API for report classification.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for classification.
func buildPrompt(description string) (system string, user string) {
	system = `You classify municipal issue reports. Return ONLY a JSON object with these fields:
- "category": one of "broken_light", "roadwork", "blockage"
- "severity": an integer from 1 (minor) to 5 (severe)

Rules:
- "broken_light" covers street lighting problems
- "roadwork" covers road surface damage, construction, potholes
- "blockage" covers anything obstructing a road or path
- Judge severity from safety impact and urgency
- Return valid JSON only, no markdown fencing or explanation`

	user = "Classify this report:\n\n" + description
	return
}

// SuggestClassification sends a report description to the LLM and returns
// the proposed category and severity.
func (c *Client) SuggestClassification(ctx context.Context, description string) (*Suggestion, error) {
	systemPrompt, userPrompt := buildPrompt(description)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	// Strip markdown fencing if present
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if !models.ValidCategory(s.Category) {
		return nil, fmt.Errorf("LLM returned unknown category: %q", s.Category)
	}
	if s.Severity < 1 {
		s.Severity = 1
	}
	if s.Severity > 5 {
		s.Severity = 5
	}
	return &s, nil
}
