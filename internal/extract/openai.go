package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/utils"
)

const (
	GroqBaseURL   = "https://api.groq.com/openai/v1"
	OpenAIBaseURL = "https://api.openai.com/v1"

	// maxErrorBody bounds how much of a failed response ends up in errors and logs.
	maxErrorBody = 512
)

// OpenAICompatible speaks the /models + /chat/completions dialect shared by
// OpenAI, Groq and most self-hosted gateways.
type OpenAICompatible struct {
	name    string
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewOpenAICompatible(name, baseURL string, client *http.Client, log logger.Logger) *OpenAICompatible {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAICompatible{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  log,
	}
}

func (p *OpenAICompatible) Name() string { return p.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *OpenAICompatible) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	var out modelList
	if err := p.do(ctx, http.MethodGet, "/models", apiKey, nil, &out); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (p *OpenAICompatible) Extract(ctx context.Context, text, apiKey, model string) (string, error) {
	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(text)},
		},
		Temperature: 0.1,
		MaxTokens:   500,
	}

	var out chatResponse
	if err := p.do(ctx, http.MethodPost, "/chat/completions", apiKey, req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", ErrMalformedExtraction, p.name)
	}
	return out.Choices[0].Message.Content, nil
}

func (p *OpenAICompatible) TestConnection(ctx context.Context, apiKey, model string) error {
	req := chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: "Hello, this is a test."}},
		MaxTokens: 10,
	}
	return p.do(ctx, http.MethodPost, "/chat/completions", apiKey, req, nil)
}

func (p *OpenAICompatible) do(ctx context.Context, method, path, apiKey string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", p.name, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return unavailable(p.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return unavailable(p.name, err)
	}
	defer utils.Close(resp.Body)

	if err := checkStatus(resp); err != nil {
		p.logger.Warn("provider call failed",
			logger.String("provider", p.name),
			logger.String("path", path),
			logger.Error(err))
		return unavailable(p.name, err)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s response: %v", ErrMalformedExtraction, p.name, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return errors.New(resp.Status)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
}
