package apply

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetcher_Download(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "hemmelig" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, "pdf-bytes")
	}))
	defer srv.Close()

	f := NewFetcher("hemmelig")
	content, err := f.Download(context.Background(), srv.URL+"/files/bilag.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(content) != "pdf-bytes" {
		t.Fatalf("content = %q", content)
	}
}

func TestFetcher_DownloadNon2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher("k")
	if _, err := f.Download(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestFileNameFromURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want string
	}{
		{"https://os2.example/files/bilag.pdf", "bilag.pdf"},
		{"https://os2.example/files/bilag.pdf?token=abc", "bilag.pdf"},
		{"https://os2.example/files/et%20bilag.pdf", "et bilag.pdf"},
		{"https://os2.example/files/bilag.pdf/", "bilag.pdf"},
	}

	for _, tc := range cases {
		got, err := fileNameFromURL(tc.url)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.url, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestFileNameFromURL_NoName(t *testing.T) {
	t.Parallel()

	if _, err := fileNameFromURL("https://os2.example"); err == nil {
		t.Fatalf("expected error for url without file name")
	}
}
