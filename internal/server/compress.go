// Response compression middleware for the admin API.
//
// Compresses responses using zstd, brotli, or gzip at fast compression
// levels, negotiated from the request's Accept-Encoding header. Skips
// responses that already carry a Content-Encoding.
package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// compressMiddleware returns a handler that compresses responses based on
// the client's Accept-Encoding header.
func compressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepted := parseAcceptEncoding(r.Header.Get("Accept-Encoding"))
		enc := negotiateEncoding(accepted)
		if enc == "" {
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w, encoding: enc}
		defer cw.finish()
		next.ServeHTTP(cw, r)
	})
}

// negotiateEncoding picks the best encoding the client accepts.
func negotiateEncoding(accepted map[string]bool) string {
	for _, enc := range []string{"zstd", "br", "gzip"} {
		if accepted[enc] {
			return enc
		}
	}
	return ""
}

// parseAcceptEncoding splits an Accept-Encoding header into the set of
// tokens the client listed, ignoring q-values — the admin API has no
// compression-quality tradeoff worth weighing.
func parseAcceptEncoding(header string) map[string]bool {
	accepted := make(map[string]bool)
	for _, tok := range strings.Split(header, ",") {
		tok, _, _ = strings.Cut(tok, ";")
		tok = strings.TrimSpace(tok)
		if tok != "" {
			accepted[tok] = true
		}
	}
	return accepted
}

// compressWriter wraps http.ResponseWriter to compress the response body.
type compressWriter struct {
	http.ResponseWriter
	encoding     string
	writer       io.WriteCloser
	headerSent   bool
	skipCompress bool
}

func (cw *compressWriter) WriteHeader(code int) {
	cw.initOnce()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressWriter) Write(b []byte) (int, error) {
	cw.initOnce()
	if cw.skipCompress {
		return cw.ResponseWriter.Write(b)
	}
	return cw.writer.Write(b)
}

// initOnce inspects response headers to decide whether to compress.
// Called once before the first Write or WriteHeader.
func (cw *compressWriter) initOnce() {
	if cw.headerSent {
		return
	}
	cw.headerSent = true

	h := cw.Header()
	if h.Get("Content-Encoding") != "" {
		cw.skipCompress = true
		return
	}

	h.Del("Content-Length")
	h.Set("Content-Encoding", cw.encoding)
	h.Add("Vary", "Accept-Encoding")

	switch cw.encoding {
	case "zstd":
		enc, _ := zstd.NewWriter(cw.ResponseWriter, zstd.WithEncoderLevel(zstd.SpeedFastest))
		cw.writer = enc
	case "br":
		cw.writer = brotli.NewWriterLevel(cw.ResponseWriter, 1)
	case "gzip":
		gz, _ := gzip.NewWriterLevel(cw.ResponseWriter, gzip.BestSpeed)
		cw.writer = gz
	}
}

func (cw *compressWriter) finish() {
	if cw.writer == nil {
		return
	}
	_ = cw.writer.Close()
}
