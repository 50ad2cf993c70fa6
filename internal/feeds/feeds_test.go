package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Blog</title>
  <item>
    <title>Newest Post</title>
    <link>https://blog.example.com/newest</link>
    <pubDate>Mon, 10 Aug 2026 09:00:00 GMT</pubDate>
    <description><![CDATA[<p>Fresh <b>content</b> here.</p><script>alert(1)</script>]]></description>
  </item>
  <item>
    <title>Old Post</title>
    <link>https://blog.example.com/old</link>
    <pubDate>Tue, 02 Jan 2018 09:00:00 GMT</pubDate>
    <description>ancient</description>
  </item>
  <item>
    <title>Undated Post</title>
    <link>https://blog.example.com/undated</link>
    <description>no date on this one</description>
  </item>
</channel>
</rss>`

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_SkipsOldAndUndatedItems(t *testing.T) {
	srv := serveFeed(t, testFeed)
	f := NewFetcher(zerolog.Nop())

	minDate := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	entries, err := f.Fetch(context.Background(), srv.URL, 5, minDate)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (old and undated items skipped)", len(entries))
	}
	if entries[0].URL != "https://blog.example.com/newest" {
		t.Fatalf("entry URL = %q", entries[0].URL)
	}
}

func TestFetch_StripsHTMLFromContent(t *testing.T) {
	srv := serveFeed(t, testFeed)
	f := NewFetcher(zerolog.Nop())

	entries, err := f.Fetch(context.Background(), srv.URL, 5, time.Time{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no entries")
	}
	if got, want := entries[0].Content, "Fresh content here."; got != want {
		t.Fatalf("Content = %q, want %q", got, want)
	}
}

func TestFetch_HonorsLimit(t *testing.T) {
	srv := serveFeed(t, testFeed)
	f := NewFetcher(zerolog.Nop())

	entries, err := f.Fetch(context.Background(), srv.URL, 1, time.Time{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want limit of 1", len(entries))
	}
}

func TestCleanHTML(t *testing.T) {
	got := CleanHTML("<div><p>One\n two</p><style>p{}</style><p>three</p></div>")
	if want := "One two three"; got != want {
		t.Fatalf("CleanHTML = %q, want %q", got, want)
	}
}
