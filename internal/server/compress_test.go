package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompressMiddlewareNegotiatesGzip(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health_check", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	compressMiddleware(inner).ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", rr.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read decompressed body: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q", body)
	}
}

func TestCompressMiddlewareSkipsUnsupportedClient(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health_check", nil)
	compressMiddleware(inner).ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "" {
		t.Errorf("expected no Content-Encoding, got %q", rr.Header().Get("Content-Encoding"))
	}
	if rr.Body.String() != "plain" {
		t.Errorf("body = %q", rr.Body.String())
	}
}
