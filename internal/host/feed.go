package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Feed streams Events from a websocket endpoint (for example a browser
// extension bridge) into a Page. The connection is outbound only.
type Feed struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Run dials the feed and applies every message until the peer closes the
// connection or ctx is cancelled.
func (f *Feed) Run(ctx context.Context, page *Page) error {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, f.URL, f.Header)
	if err != nil {
		return fmt.Errorf("dialing feed %s: %w", f.URL, err)
	}
	defer conn.Close()
	logger.Info("connected to entry feed", slog.String("url", f.URL))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				logger.Info("entry feed closed", slog.Int("code", closeErr.Code))
				return nil
			}
			return fmt.Errorf("reading feed: %w", err)
		}
		ev, err := DecodeEvent(raw)
		if err != nil {
			logger.Warn("skipping feed message", slog.String("error", err.Error()))
			continue
		}
		if err := page.Apply(ctx, ev); err != nil {
			logger.Warn("feed event rejected", slog.String("error", err.Error()))
		}
	}
}
