// Package logging configures the process-wide slog logger: a colorized
// console handler when stdout is a terminal, plain JSON otherwise, optionally
// chained with a rate-limited webhook sink.
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Options configures the logger.
type Options struct {
	Level      slog.Level
	WebhookURL string // optional; empty disables the webhook sink
}

// Setup builds the process logger and installs it as the slog default. It
// returns a shutdown func that must be called so the webhook sink can flush
// and drain.
func Setup(opts Options) (shutdown func()) {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = tint.NewHandler(colorable.NewColorable(os.Stdout), &tint.Options{
			Level:      opts.Level,
			TimeFormat: "15:04:05",
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: opts.Level})
	}

	if opts.WebhookURL == "" {
		slog.SetDefault(slog.New(handler))
		return func() {}
	}

	wh := newWebhookHandler(opts.WebhookURL, handler)
	slog.SetDefault(slog.New(wh))
	return wh.stop
}
