package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/utils"
)

const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini talks to the Generative Language REST API.
type Gemini struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewGemini(baseURL string, client *http.Client, log logger.Logger) *Gemini {
	if client == nil {
		client = &http.Client{}
	}
	return &Gemini{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: log}
}

func (g *Gemini) Name() string { return "gemini" }

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
	GenerationConfig  map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiModels struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

func (g *Gemini) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	var out geminiModels
	if err := g.do(ctx, http.MethodGet, "/models", apiKey, nil, &out); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		if !supports(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return models, nil
}

func (g *Gemini) Extract(ctx context.Context, text, apiKey, model string) (string, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userPrompt(text)}}}},
		GenerationConfig: map[string]any{
			"temperature":      0,
			"maxOutputTokens":  1024,
			"responseMimeType": "application/json",
		},
	}

	var out geminiResponse
	if err := g.do(ctx, http.MethodPost, generatePath(model), apiKey, req, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrMalformedExtraction)
	}

	var b strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

func (g *Gemini) TestConnection(ctx context.Context, apiKey, model string) error {
	req := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: "Hello, this is a test."}}}},
		GenerationConfig: map[string]any{"maxOutputTokens": 10},
	}
	return g.do(ctx, http.MethodPost, generatePath(model), apiKey, req, nil)
}

func generatePath(model string) string {
	return "/models/" + url.PathEscape(strings.TrimPrefix(model, "models/")) + ":generateContent"
}

func supports(methods []string, want string) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}

func (g *Gemini) do(ctx context.Context, method, path, apiKey string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode gemini request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return unavailable(g.Name(), err)
	}
	req.Header.Set("x-goog-api-key", apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return unavailable(g.Name(), err)
	}
	defer utils.Close(resp.Body)

	if err := checkStatus(resp); err != nil {
		g.logger.Warn("provider call failed",
			logger.String("provider", g.Name()),
			logger.String("path", path),
			logger.Error(err))
		return unavailable(g.Name(), err)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: gemini response: %v", ErrMalformedExtraction, err)
	}
	return nil
}
