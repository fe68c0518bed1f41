package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewFromConfig(t *testing.T) {
	cases := []struct {
		provider string
		wantID   string
		wantErr  bool
	}{
		{provider: "", wantID: "hash:384"},
		{provider: "hash", wantID: "hash:384"},
		{provider: "openai", wantID: "openai:text-embedding-3-small"},
		{provider: "ollama", wantID: "ollama:text-embedding-3-small"},
		{provider: "bert", wantErr: true},
	}
	for _, tc := range cases {
		p, err := NewFromConfig(&Config{Provider: tc.provider, Model: "text-embedding-3-small"})
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.provider)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.provider, err)
		}
		if p.ModelID() != tc.wantID {
			t.Fatalf("%q: model id %q want %q", tc.provider, p.ModelID(), tc.wantID)
		}
	}
}

func TestOpenAI_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" || r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(&Config{Model: "m", APIKey: "sk-test", BaseURL: srv.URL + "/"})
	v, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 3 || p.Dim() != 3 {
		t.Fatalf("unexpected vector %v (dim %d)", v, p.Dim())
	}

	noKey := NewOpenAI(&Config{Model: "m", BaseURL: srv.URL})
	if _, err := noKey.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error without API key")
	}
}

func TestOllama_EmbedAndPing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			http.Error(w, "bad prompt", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1, 2}})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewOllama(&Config{Model: "nomic-embed-text", BaseURL: srv.URL})
	v, err := p.Embed(context.Background(), "dawn")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 2 || p.Dim() != 2 {
		t.Fatalf("unexpected vector %v", v)
	}
	pinger, ok := p.(Pinger)
	if !ok {
		t.Fatalf("ollama provider should implement Pinger")
	}
	if err := pinger.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
