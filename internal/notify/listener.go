package notify

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"corsair/internal/domain"
)

// Listener connects to the worker's push channel and publishes every
// inbound notification into the feed. It reconnects with a fixed delay
// until its context is cancelled.
type Listener struct {
	URL    string
	Token  string
	Feed   *Feed
	Logger *log.Logger

	// ReconnectDelay defaults to 2s.
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

func (l *Listener) logger() *log.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return log.Default()
}

func (l *Listener) dialer() *websocket.Dialer {
	if l.Dialer != nil {
		return l.Dialer
	}
	return websocket.DefaultDialer
}

func (l *Listener) delay() time.Duration {
	if l.ReconnectDelay > 0 {
		return l.ReconnectDelay
	}
	return 2 * time.Second
}

// Run blocks until ctx is cancelled, feeding notifications as they arrive.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := l.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger().Printf("push channel disconnected: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.delay()):
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) error {
	header := http.Header{}
	if l.Token != "" {
		header.Set("Authorization", "Bearer "+l.Token)
	}
	conn, _, err := l.dialer().DialContext(ctx, l.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadJSON when the context goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var n domain.Notification
		if err := conn.ReadJSON(&n); err != nil {
			return err
		}
		l.Feed.Publish(n)
	}
}
