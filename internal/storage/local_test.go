package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return s
}

func TestLocalStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := []byte{0xff, 0xd8, 0xff, 0xe0}
	if err := s.Put(ctx, "images/m1.jpg", data, "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "images/m1.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Get = %v, want %v", got, data)
	}
}

func TestLocalStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "images/absent.jpg")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Get missing = %v, want ErrObjectNotFound", err)
	}
}

func TestLocalStore_RejectsTraversalKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"../escape.jpg", "/etc/passwd", "a/../../b"} {
		if err := s.Put(ctx, key, []byte("x"), "image/jpeg"); err == nil {
			t.Fatalf("Put(%q) succeeded, want key rejection", key)
		}
	}
}

func TestS3Store_URLForms(t *testing.T) {
	cases := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{
			name: "cdn base url wins",
			cfg:  S3Config{Bucket: "munin", Region: "us-east-1", PublicBaseURL: "https://cdn.example.com/"},
			want: "https://cdn.example.com/images/m1.jpg",
		},
		{
			name: "custom endpoint is path style",
			cfg:  S3Config{Bucket: "munin", Region: "us-east-1", Endpoint: "http://minio:9000"},
			want: "http://minio:9000/munin/images/m1.jpg",
		},
		{
			name: "aws default is virtual hosted",
			cfg:  S3Config{Bucket: "munin", Region: "eu-west-1"},
			want: "https://munin.s3.eu-west-1.amazonaws.com/images/m1.jpg",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &S3Store{cfg: tc.cfg}
			if got := s.URL("images/m1.jpg"); got != tc.want {
				t.Fatalf("URL = %q, want %q", got, tc.want)
			}
		})
	}
}
