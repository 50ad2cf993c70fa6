package destinations

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestLinkedIn(t *testing.T, cfg LinkedInConfig, handler http.Handler) *LinkedIn {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	l, err := NewLinkedIn(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLinkedIn: %v", err)
	}
	l.baseURL = srv.URL
	return l
}

func TestLinkedIn_PublishTextOnly(t *testing.T) {
	var gotPayload map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ugcPosts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("X-Restli-Protocol-Version"); got != "2.0.0" {
			t.Errorf("restli version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"urn:li:share:42"}`))
	})

	l := newTestLinkedIn(t, LinkedInConfig{AccessToken: "tok", UserID: "u123"}, handler)

	res, err := l.Publish(context.Background(), PublishRequest{Text: "hello world"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.ExternalID != "urn:li:share:42" {
		t.Fatalf("ExternalID = %q", res.ExternalID)
	}

	if gotPayload["author"] != "urn:li:person:u123" {
		t.Fatalf("author = %v", gotPayload["author"])
	}
	content := gotPayload["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	if content["shareMediaCategory"] != "NONE" {
		t.Fatalf("shareMediaCategory = %v", content["shareMediaCategory"])
	}
	if content["shareCommentary"].(map[string]any)["text"] != "hello world" {
		t.Fatalf("commentary = %v", content["shareCommentary"])
	}
}

func TestLinkedIn_OrgAuthor(t *testing.T) {
	var gotAuthor string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotAuthor, _ = payload["author"].(string)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"urn:li:share:1"}`))
	})

	l := newTestLinkedIn(t, LinkedInConfig{AccessToken: "tok", OrgID: "999", PostAsOrg: true}, handler)
	if _, err := l.Publish(context.Background(), PublishRequest{Text: "org post"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gotAuthor != "urn:li:organization:999" {
		t.Fatalf("author = %q", gotAuthor)
	}
}

func TestLinkedIn_PublishWithImage(t *testing.T) {
	image := []byte{0xff, 0xd8, 1, 2, 3}
	var uploadedBytes []byte
	var sharePayload map[string]any

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "registerUpload" {
			t.Errorf("action = %q", r.URL.Query().Get("action"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": map[string]any{
				"asset": "urn:li:digitalmediaAsset:abc",
				"uploadMechanism": map[string]any{
					"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]string{
						"uploadUrl": srvURL + "/upload",
					},
				},
			},
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		var err error
		uploadedBytes, err = io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read upload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sharePayload)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"urn:li:share:7"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	l, err := NewLinkedIn(LinkedInConfig{AccessToken: "tok", UserID: "u1"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLinkedIn: %v", err)
	}
	l.baseURL = srv.URL

	if _, err := l.Publish(context.Background(), PublishRequest{Text: "with image", Image: image, ImageAlt: "alt"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if string(uploadedBytes) != string(image) {
		t.Fatalf("uploaded bytes differ")
	}
	content := sharePayload["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	if content["shareMediaCategory"] != "IMAGE" {
		t.Fatalf("shareMediaCategory = %v", content["shareMediaCategory"])
	}
	media := content["media"].([]any)[0].(map[string]any)
	if media["media"] != "urn:li:digitalmediaAsset:abc" {
		t.Fatalf("media urn = %v", media["media"])
	}
}

func TestLinkedIn_ImageUploadFailureDegradesToText(t *testing.T) {
	var sharePayload map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sharePayload)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"urn:li:share:8"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	l, err := NewLinkedIn(LinkedInConfig{AccessToken: "tok", UserID: "u1"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLinkedIn: %v", err)
	}
	l.baseURL = srv.URL

	if _, err := l.Publish(context.Background(), PublishRequest{Text: "degraded", Image: []byte{1}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	content := sharePayload["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	if content["shareMediaCategory"] != "NONE" {
		t.Fatalf("shareMediaCategory = %v, want NONE after upload failure", content["shareMediaCategory"])
	}
}

func TestNewLinkedIn_RequiresCredentials(t *testing.T) {
	if _, err := NewLinkedIn(LinkedInConfig{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without access token")
	}
	if _, err := NewLinkedIn(LinkedInConfig{AccessToken: "tok", PostAsOrg: true}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for org posting without org id")
	}
	if _, err := NewLinkedIn(LinkedInConfig{AccessToken: "tok"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for person posting without user id")
	}
}
