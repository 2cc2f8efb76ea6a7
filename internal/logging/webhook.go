package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// minWebhookInterval bounds how often the webhook sink issues an HTTP POST,
// coalescing bursts of log records into a single message.
const minWebhookInterval = 2 * time.Second

// webhookHandler forwards records at Warn level and above to a chat webhook
// URL (Slack/Discord-compatible {"content"/"text": "..."} payload), batching
// bursts so a noisy period doesn't trip the endpoint's rate limit. It wraps
// an underlying handler rather than replacing it: every record is still
// emitted locally.
type webhookHandler struct {
	slog.Handler
	url    string
	client *http.Client

	mu      sync.Mutex
	pending []string
	timer   *time.Timer
	closed  bool
	wg      sync.WaitGroup
}

func newWebhookHandler(url string, next slog.Handler) *webhookHandler {
	return &webhookHandler{
		Handler: next,
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *webhookHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		h.enqueue(formatRecord(r))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *webhookHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &webhookHandler{Handler: h.Handler.WithAttrs(attrs), url: h.url, client: h.client}
}

func (h *webhookHandler) WithGroup(name string) slog.Handler {
	return &webhookHandler{Handler: h.Handler.WithGroup(name), url: h.url, client: h.client}
}

// enqueue appends a line to the pending batch and arms a timer to flush it.
// Records arriving before the timer fires are coalesced into the same POST.
func (h *webhookHandler) enqueue(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.pending = append(h.pending, line)
	if h.timer != nil {
		return
	}
	h.timer = time.AfterFunc(minWebhookInterval, h.flush)
	h.wg.Add(1)
}

func (h *webhookHandler) flush() {
	defer h.wg.Done()
	h.mu.Lock()
	lines := h.pending
	h.pending = nil
	h.timer = nil
	h.mu.Unlock()
	if len(lines) == 0 {
		return
	}
	h.send(joinLines(lines))
}

func (h *webhookHandler) send(message string) {
	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

// stop flushes any pending batch and waits for in-flight sends to finish.
func (h *webhookHandler) stop() {
	h.mu.Lock()
	h.closed = true
	if h.timer != nil {
		h.timer.Stop()
		h.mu.Unlock()
		h.flush()
	} else {
		h.mu.Unlock()
	}
	h.wg.Wait()
}

func formatRecord(r slog.Record) string {
	return "[" + r.Level.String() + "] " + r.Message
}

func joinLines(lines []string) string {
	var b bytes.Buffer
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l)
	}
	return b.String()
}
