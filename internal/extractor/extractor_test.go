package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/friendsincode/munin_post/internal/models"
)

func fakeAPI(t *testing.T, replyText string, gotReq *apiRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") == "" {
			t.Errorf("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}
		if gotReq != nil {
			if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": replyText}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractMessages(t *testing.T) {
	reply := `1. First insight about shipping software faster.
2. Second point that spans
   two lines of reply.
3. Third takeaway with a call to action.`

	var got apiRequest
	srv := fakeAPI(t, reply, &got)
	c := NewClient("test-key", "", zerolog.Nop(), WithBaseURL(srv.URL))

	messages, err := c.ExtractMessages(context.Background(), "Shipping Faster", "body text", 3)
	if err != nil {
		t.Fatalf("ExtractMessages: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	if want := "Second point that spans two lines of reply."; messages[1] != want {
		t.Fatalf("messages[1] = %q, want %q", messages[1], want)
	}
	if got.Model != DefaultModel {
		t.Fatalf("request model = %q, want default %q", got.Model, DefaultModel)
	}
	if !strings.Contains(got.Messages[0].Content, "Shipping Faster") {
		t.Fatalf("prompt missing title: %q", got.Messages[0].Content)
	}
}

func TestExtractMessages_CapsAtRequested(t *testing.T) {
	reply := "1. one\n2. two\n3. three\n4. four"
	srv := fakeAPI(t, reply, nil)
	c := NewClient("test-key", "", zerolog.Nop(), WithBaseURL(srv.URL))

	messages, err := c.ExtractMessages(context.Background(), "T", "c", 2)
	if err != nil {
		t.Fatalf("ExtractMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want cap of 2", len(messages))
	}
}

func TestExtractMessages_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "", zerolog.Nop(), WithBaseURL(srv.URL))
	if _, err := c.ExtractMessages(context.Background(), "T", "c", 3); err == nil {
		t.Fatalf("expected error from 429 response")
	}
}

func TestParseNumberedList_IgnoresPreamble(t *testing.T) {
	reply := `Here are the messages you asked for:

1. Actual message one.
2. Actual message two.`

	messages := ParseNumberedList(reply)
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0] != "Actual message one." {
		t.Fatalf("messages[0] = %q", messages[0])
	}
}

func TestImagePrompt_FallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("test-key", "", zerolog.Nop(), WithBaseURL(srv.URL))
	got := c.ImagePrompt(context.Background(), "My Title", "msg")
	if !strings.Contains(got, "My Title") {
		t.Fatalf("fallback prompt = %q, want it to mention the title", got)
	}
}

func TestEnhanceForPlatform_LinkedIn(t *testing.T) {
	got := EnhanceForPlatform("Key insight.", models.DestinationLinkedIn, "https://blog.example.com/p", []string{"golang", "devops"})
	want := "Key insight.\n\nRead more: https://blog.example.com/p\n\n#golang #devops"
	if got != want {
		t.Fatalf("EnhanceForPlatform = %q, want %q", got, want)
	}
}

func TestEnhanceForPlatform_XTruncates(t *testing.T) {
	long := strings.Repeat("a", 400)
	url := "https://blog.example.com/p"

	got := EnhanceForPlatform(long, models.DestinationX, url, nil)
	if len(got) > xCharLimit {
		t.Fatalf("X message length %d exceeds %d", len(got), xCharLimit)
	}
	if !strings.Contains(got, "...") {
		t.Fatalf("truncated message missing ellipsis: %q", got)
	}
	if !strings.HasSuffix(got, url) {
		t.Fatalf("X message must end with the blog URL: %q", got)
	}
}

func TestEnhanceForPlatform_XHashtagsOnlyWhenTheyFit(t *testing.T) {
	url := "https://blog.example.com/p"

	short := EnhanceForPlatform("Short one.", models.DestinationX, url, []string{"go", "infra", "ops", "extra"})
	if !strings.Contains(short, "#go #infra #ops") {
		t.Fatalf("expected first three hashtags appended: %q", short)
	}
	if strings.Contains(short, "#extra") {
		t.Fatalf("expected hashtag list capped at three: %q", short)
	}

	long := strings.Repeat("b", 250)
	crowded := EnhanceForPlatform(long, models.DestinationX, url, []string{"golang"})
	if strings.Contains(crowded, "#golang") {
		t.Fatalf("hashtags must be dropped when they overflow the cap: %q", crowded)
	}
	if len(crowded) > xCharLimit {
		t.Fatalf("length %d exceeds %d", len(crowded), xCharLimit)
	}
}

func TestEnhanceForPlatform_XOverlongURLDropsLink(t *testing.T) {
	url := "https://blog.example.com/" + strings.Repeat("p", 300)

	got := EnhanceForPlatform("short message", models.DestinationX, url, []string{"go"})
	if utf8.RuneCountInString(got) > xCharLimit {
		t.Fatalf("X message length %d exceeds %d", utf8.RuneCountInString(got), xCharLimit)
	}
	if strings.Contains(got, url) {
		t.Fatalf("URL longer than the cap must be dropped: %q", got)
	}
	if !strings.Contains(got, "short message") {
		t.Fatalf("message text lost: %q", got)
	}
}

func TestEnhanceForPlatform_XTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 300)
	url := "https://blog.example.com/p"

	got := EnhanceForPlatform(long, models.DestinationX, url, nil)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if utf8.RuneCountInString(got) > xCharLimit {
		t.Fatalf("X message length %d runes exceeds %d", utf8.RuneCountInString(got), xCharLimit)
	}
	if !strings.HasSuffix(got, url) {
		t.Fatalf("X message must end with the blog URL: %q", got)
	}
	if !strings.Contains(got, "...") {
		t.Fatalf("truncated message missing ellipsis: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"hello", -1, ""},
	}
	for _, tc := range cases {
		got := TruncateRunes(tc.in, tc.max)
		if got != tc.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("TruncateRunes(%q, %d) produced invalid UTF-8", tc.in, tc.max)
		}
	}
}

func TestExtractMessages_ContentCapKeepsValidUTF8(t *testing.T) {
	var got apiRequest
	srv := fakeAPI(t, "1. one", &got)
	c := NewClient("test-key", "", zerolog.Nop(), WithBaseURL(srv.URL))

	content := strings.Repeat("é", maxContentChars+100)
	if _, err := c.ExtractMessages(context.Background(), "T", content, 1); err != nil {
		t.Fatalf("ExtractMessages: %v", err)
	}
	if !utf8.ValidString(got.Messages[0].Content) {
		t.Fatalf("content cap split a rune in the prompt")
	}
}
