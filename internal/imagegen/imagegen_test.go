package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/storage"
)

type staticCrafter struct{ prompt string }

func (s staticCrafter) ImagePrompt(context.Context, string, string) string { return s.prompt }

func newLocalStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	st, err := storage.NewLocalStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return st
}

func TestGenerateForMessage(t *testing.T) {
	imageBytes := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	var gotPrompt string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer xai-key" {
			t.Errorf("bad authorization header %q", r.Header.Get("Authorization"))
		}
		var req generationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotPrompt = req.Prompt
		if req.Model != imageModel {
			t.Errorf("model = %q, want %q", req.Model, imageModel)
		}
		if req.ResponseFormat != "b64_json" {
			t.Errorf("response_format = %q", req.ResponseFormat)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(imageBytes)}},
		})
	}))
	defer srv.Close()

	store := newLocalStore(t)
	g := New("xai-key", staticCrafter{prompt: "a lighthouse"}, store, zerolog.Nop(), WithBaseURL(srv.URL))

	res, err := g.GenerateForMessage(context.Background(), "Title", "msg", "m-123")
	if err != nil {
		t.Fatalf("GenerateForMessage: %v", err)
	}
	if gotPrompt != "a lighthouse" {
		t.Fatalf("prompt sent = %q", gotPrompt)
	}
	if res.Key != "images/m-123.jpg" {
		t.Fatalf("key = %q", res.Key)
	}

	stored, err := store.Get(context.Background(), res.Key)
	if err != nil {
		t.Fatalf("Get stored image: %v", err)
	}
	if string(stored) != string(imageBytes) {
		t.Fatalf("stored bytes differ from generated bytes")
	}
}

func TestGenerateForMessage_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	g := New("xai-key", staticCrafter{prompt: "p"}, newLocalStore(t), zerolog.Nop(), WithBaseURL(srv.URL))
	if _, err := g.GenerateForMessage(context.Background(), "T", "m", "m-1"); err == nil {
		t.Fatalf("expected error for empty data response")
	}
}

func TestGenerateForMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := New("xai-key", staticCrafter{prompt: "p"}, newLocalStore(t), zerolog.Nop(), WithBaseURL(srv.URL))
	if _, err := g.GenerateForMessage(context.Background(), "T", "m", "m-1"); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}
