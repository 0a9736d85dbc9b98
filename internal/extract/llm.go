package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yuk-monitor-go/internal/logger"
	"yuk-monitor-go/internal/types"
)

// TextCompletionService is the injectable AI capability: prompt in, raw
// completion text out. Production wiring uses ChatClient; tests supply a fake.
type TextCompletionService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const llmTimeout = 30 * time.Second

// ChatClient talks to an OpenAI-style chat-completions endpoint. One request
// per call, no retry: the dispatcher bounds the whole pipeline to a single
// network round-trip and degrades to the deterministic path on any failure.
type ChatClient struct {
	gatewayURL string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewChatClient(gatewayURL, apiKey, model string) *ChatClient {
	return &ChatClient{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: llmTimeout},
	}
}

func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.gatewayURL == "" || c.apiKey == "" {
		return "", fmt.Errorf("llm gateway not configured")
	}

	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a data extraction engine. Respond with JSON only, no commentary."},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
		"max_tokens":  8000,
	}
	data, _ := json.Marshal(reqBody)

	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm gateway status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// LLMExtractor is the primary strategy: ask the completion service to do the
// lot splitting and pairing, then normalize whatever comes back.
type LLMExtractor struct {
	svc TextCompletionService
	log *logger.Logger
}

func NewLLMExtractor(svc TextCompletionService) *LLMExtractor {
	return &LLMExtractor{svc: svc, log: logger.New()}
}

func (e *LLMExtractor) Name() string { return "llm" }

func (e *LLMExtractor) TryExtract(ctx context.Context, text string) ([]types.ShipmentDraft, error) {
	content, err := e.svc.Complete(ctx, buildPrompt(text))
	if err != nil {
		return nil, err
	}

	raw := stripCodeFences(content)

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, fmt.Errorf("llm output is not a JSON array: %w", err)
	}

	var drafts []types.ShipmentDraft
	for _, el := range elems {
		// non-object elements (strings, numbers, null) are dropped silently
		trimmed := bytes.TrimSpace(el)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			e.log.WithField("component", "llm-extractor").Debug("skipping non-object array element")
			continue
		}
		var d types.ShipmentDraft
		if err := json.Unmarshal(el, &d); err != nil {
			e.log.WithField("component", "llm-extractor").WithError(err).Debug("skipping malformed record")
			continue
		}
		drafts = append(drafts, normalizeDraft(d, text))
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("llm returned no usable records")
	}
	return drafts, nil
}

// normalizeDraft applies the field caps and backfills the phone from the
// original message when the model omitted it.
func normalizeDraft(d types.ShipmentDraft, original string) types.ShipmentDraft {
	d.Origin = truncate(strings.TrimSpace(d.Origin), types.MaxOriginLen)
	d.Destination = truncate(strings.TrimSpace(d.Destination), types.MaxDestinationLen)
	d.CargoType = truncate(strings.TrimSpace(d.CargoType), types.MaxCargoTypeLen)
	d.TruckType = truncate(strings.TrimSpace(d.TruckType), types.MaxTruckTypeLen)
	d.PaymentType = truncate(strings.TrimSpace(d.PaymentType), types.MaxPaymentTypeLen)
	if d.Phone == "" {
		d.Phone = findPhone(original, phonePattern)
	}
	return d
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`You extract structured shipment offers from freight channel ads.

The ad text is multilingual (Cyrillic and Latin) and may pack several independent offers ("lots") into one message.

Rules:
1. A line made of rule characters (%s or ---) starts a NEW lot.
2. Inside a lot, each origin flag marker (%s) tags an ORIGIN city and each destination flag marker (%s) tags a DESTINATION city.
3. If a lot has several origins and/or several destinations, emit ONE record PER origin x destination PAIR.
4. Cargo descriptions follow keywords like %s; transport classes are words like %s; payment terms follow %s.

Return ONLY a JSON array. Each element is an object with keys:
origin, destination, cargo_type, truck_type, payment_type, phone, weight, additional_info
Use null or omit a key when the value is absent. No markdown, no commentary.

AD TEXT:
"""%s"""
`,
		"━━━",
		strings.Join(originMarkers, " "),
		strings.Join(destinationMarkers, " "),
		strings.Join(cargoKeywords, ", "),
		strings.Join(truckKeywords, ", "),
		strings.Join(paymentKeywords, ", "),
		text)
}

// stripCodeFences removes a leading/trailing markdown fence (with optional
// language tag) that models wrap JSON in despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// drop the optional language tag line ("json", "JSON", ...)
		first := strings.TrimSpace(s[:i])
		if first == "" || len(first) <= 8 && !strings.ContainsAny(first, "[{") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
