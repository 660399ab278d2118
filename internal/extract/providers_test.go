package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
)

func TestOpenAICompatible_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k-123" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "llama" || len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "Widget") {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"title\":\"Widget\"}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatible("groq", srv.URL, srv.Client(), logger.Nop())
	raw, err := p.Extract(context.Background(), "Widget $9.99", "k-123", "llama")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if raw != `{"title":"Widget"}` {
		t.Errorf("Extract() = %q", raw)
	}
}

func TestOpenAICompatible_ListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatible("groq", srv.URL+"/", srv.Client(), logger.Nop())
	models, err := p.ListModels(context.Background(), "k")
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if strings.Join(models, ",") != "a,b" {
		t.Errorf("ListModels() = %v", models)
	}
}

func TestProviders_Non2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	providers := []Provider{
		NewOpenAICompatible("groq", srv.URL, srv.Client(), logger.Nop()),
		NewGemini(srv.URL, srv.Client(), logger.Nop()),
	}

	for _, p := range providers {
		t.Run(p.Name(), func(t *testing.T) {
			if _, err := p.Extract(context.Background(), "text", "bad", "m"); !errors.Is(err, ErrExtractorUnavailable) {
				t.Errorf("Extract() error = %v, want ErrExtractorUnavailable", err)
			}
			if err := p.TestConnection(context.Background(), "bad", "m"); !errors.Is(err, ErrExtractorUnavailable) {
				t.Errorf("TestConnection() error = %v, want ErrExtractorUnavailable", err)
			}
			if _, err := p.ListModels(context.Background(), "bad"); !errors.Is(err, ErrExtractorUnavailable) {
				t.Errorf("ListModels() error = %v, want ErrExtractorUnavailable", err)
			}
		})
	}
}

func TestGemini_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "g-key" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"title\":"},{"text":"\"Widget\"}"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, srv.Client(), logger.Nop())
	raw, err := g.Extract(context.Background(), "Widget", "g-key", "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if raw != `{"title":"Widget"}` {
		t.Errorf("Extract() = %q", raw)
	}
}

func TestGemini_ListModelsFiltersGenerators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[
			{"name":"models/gemini-2.5-flash","supportedGenerationMethods":["generateContent"]},
			{"name":"models/embedding-001","supportedGenerationMethods":["embedContent"]}
		]}`))
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, srv.Client(), logger.Nop())
	models, err := g.ListModels(context.Background(), "k")
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 1 || models[0] != "gemini-2.5-flash" {
		t.Errorf("ListModels() = %v", models)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(
		NewGemini(GeminiBaseURL, nil, logger.Nop()),
		NewOpenAICompatible("groq", GroqBaseURL, nil, logger.Nop()),
	)

	if got := strings.Join(reg.Names(), ","); got != "gemini,groq" {
		t.Errorf("Names() = %q", got)
	}
	if _, err := reg.Get("groq"); err != nil {
		t.Errorf("Get(groq) error = %v", err)
	}
	if _, err := reg.Get("cohere"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get(cohere) error = %v, want ErrUnknownProvider", err)
	}
}
