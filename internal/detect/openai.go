package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/errors"
)

const (
	defaultEndpoint = "https://api.openai.com/v1"
	defaultModel    = "gpt-4o-mini"
	defaultTimeout  = 60 * time.Second
)

// systemPrompt instructs the vision model to answer with machine-parseable
// JSON only.
const systemPrompt = `You are a wildlife surveillance analyst. Examine the image for pest animals:
rats, crows, cats, herons, pigeons. Respond with JSON only, no prose:
{"foes_detected": bool, "foes": [{"kind": string, "confidence": 0..1,
"bbox": {"x": 0..1, "y": 0..1, "width": 0..1, "height": 0..1},
"description": string}], "scene_description": string}
Report every animal you see. Use lowercase singular kind labels.`

// tokenPrices maps model prefixes to USD per 1M input/output tokens, used
// for the per-call cost estimate.
var tokenPrices = map[string][2]float64{
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4o":      {2.50, 10.00},
	"gpt-4.1":     {2.00, 8.00},
}

// OpenAIDetector calls an OpenAI-compatible multimodal chat completion
// endpoint.
type OpenAIDetector struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewOpenAIDetector builds the vision detector from config. The API key
// comes from OPENAI_API_KEY via the config loader.
func NewOpenAIDetector(cfg *conf.DetectSettings) *OpenAIDetector {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAIDetector{
		endpoint: endpoint,
		model:    model,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Detect sends the snapshot to the vision endpoint and parses the JSON
// verdict out of the completion.
func (d *OpenAIDetector) Detect(ctx context.Context, image []byte) (Result, error) {
	if d.apiKey == "" {
		return Result{}, errors.Newf("OPENAI_API_KEY is not set").
			Component("detect").
			Category(errors.CategoryConfiguration).
			Build()
	}

	payload := chatRequest{
		Model:     d.model,
		MaxTokens: 1000,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: "Analyze this surveillance snapshot."},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
				}},
			}},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, errors.New(err).
			Component("detect").
			Category(errors.CategoryValidation).
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, errors.New(err).
			Component("detect").
			Category(errors.CategoryNetwork).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, errors.New(err).
			Component("detect").
			Category(errors.CategoryNetwork).
			NetworkContext(d.endpoint, d.client.Timeout).
			Build()
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, errors.New(err).
			Component("detect").
			Category(errors.CategoryNetwork).
			Build()
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, errors.New(err).
			Component("detect").
			Category(errors.CategoryDetector).
			Context("status_code", resp.StatusCode).
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		msg := "detector backend error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return Result{}, errors.Newf("detector request failed: %s", msg).
			Component("detect").
			Category(errors.CategoryDetector).
			Context("status_code", resp.StatusCode).
			Build()
	}
	if len(parsed.Choices) == 0 {
		return Result{}, errors.Newf("detector returned no completion choices").
			Component("detect").
			Category(errors.CategoryDetector).
			Build()
	}

	result, err := parseVerdict(parsed.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	result.Cost = d.estimateCost(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	result.Raw = parsed.Choices[0].Message.Content

	logger.Debug("Detector call completed",
		"model", d.model,
		"foes", len(result.Foes),
		"cost_usd", result.Cost,
		"duration", time.Since(start))
	return result, nil
}

// parseVerdict decodes the model's JSON answer, tolerating markdown code
// fences some models insist on.
func parseVerdict(content string) (Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return Result{}, errors.New(err).
			Component("detect").
			Category(errors.CategoryDetector).
			Context("operation", "parse_verdict").
			Build()
	}
	return result, nil
}

// estimateCost converts the token usage into USD using the model price
// table. Unknown models use the cheapest known rate.
func (d *OpenAIDetector) estimateCost(promptTokens, completionTokens int) float64 {
	prices, ok := tokenPrices[d.model]
	if !ok {
		for prefix, p := range tokenPrices {
			if strings.HasPrefix(d.model, prefix) {
				prices = p
				ok = true
				break
			}
		}
	}
	if !ok {
		prices = tokenPrices[defaultModel]
	}
	cost := float64(promptTokens)*prices[0]/1e6 + float64(completionTokens)*prices[1]/1e6
	return cost
}
