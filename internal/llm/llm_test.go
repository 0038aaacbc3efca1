package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loqalabs/synapse-audio/internal/config"
)

func TestOllamaStreamingComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "tiny" || req.System != "sys" || !req.Stream {
			t.Errorf("unexpected request: %+v", req)
		}
		for _, piece := range []string{"AURA: hi\n", "NEO: hello"} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", piece)
		}
		fmt.Fprintln(w, `{"response":"","done":true,"eval_count":4}`)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(srv.URL+"/", "tiny")
	text, err := Complete(context.Background(), gen, Request{Prompt: "p", System: "sys"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "AURA: hi\nNEO: hello" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := Complete(context.Background(), NewOllamaGenerator(srv.URL, ""), Request{Prompt: "p"}); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestGatewayRequiresCredential(t *testing.T) {
	if _, err := NewGatewayGenerator("https://example.invalid/v1", " ", "m"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestGatewayCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[1].Role != "user" {
			t.Errorf("expected system then user messages, got %+v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"message":{"role":"assistant","content":"AURA: question\nNEO: answer"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`)
	}))
	defer srv.Close()

	gen, err := NewGatewayGenerator(srv.URL+"/v1", "key", "m")
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	text, err := Complete(context.Background(), gen, Request{Prompt: "p", System: "s"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "AURA: question\nNEO: answer" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestGatewayUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()

	gen, err := NewGatewayGenerator(srv.URL+"/v1", "key", "m")
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	if _, err := Complete(context.Background(), gen, Request{Prompt: "p"}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestExecGenerator(t *testing.T) {
	gen, err := NewExecGenerator(`sh -c 'cat >/dev/null; echo "{\"content\":\"NEO: from exec\"}"'`)
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	text, err := Complete(context.Background(), gen, Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "NEO: from exec" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExecGeneratorEmptyCommand(t *testing.T) {
	if _, err := NewExecGenerator("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestFromConfigMock(t *testing.T) {
	gen, err := FromConfig(config.LLMConfig{Mode: "mock"})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	text, err := Complete(context.Background(), gen, Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.HasPrefix(text, "AURA:") {
		t.Fatalf("expected mock dialogue, got %q", text)
	}
}

func TestFromConfigGatewayWithoutKey(t *testing.T) {
	_, err := FromConfig(config.LLMConfig{Mode: "gateway", Endpoint: "https://example.invalid/v1"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
}
