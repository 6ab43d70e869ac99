package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bhandras/devpanel/internal/config"
	"github.com/bhandras/devpanel/internal/transport"
	"github.com/bhandras/devpanel/internal/transport/socketio"
	"github.com/bhandras/devpanel/internal/transport/websocket"
)

const connectTimeout = 10 * time.Second

// connect opens the configured transport. The returned close function
// releases it.
func connect(ctx context.Context, cfg *config.Config) (transport.Messenger, func(), error) {
	var (
		m       transport.Messenger
		closeFn func()
	)

	switch cfg.Transport {
	case config.TransportWebSocket:
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		conn, err := websocket.Dial(dialCtx, cfg.ServerURL, cfg.Token)
		if err != nil {
			return nil, nil, err
		}
		m = conn
		closeFn = func() { _ = conn.Close() }

	default:
		client := socketio.NewClient(socketio.Config{
			ServerURL: cfg.ServerURL,
			Path:      cfg.Path,
			Event:     cfg.Event,
			Token:     cfg.Token,
		})
		if err := client.Connect(); err != nil {
			return nil, nil, err
		}
		if !client.WaitForConnect(connectTimeout) {
			_ = client.Close()
			return nil, nil, fmt.Errorf("timed out connecting to %s", cfg.ServerURL)
		}
		m = client
		closeFn = func() { _ = client.Close() }
	}

	if cfg.Secret == nil {
		return m, closeFn, nil
	}
	sealed := transport.NewSealed(m, cfg.Secret)
	return sealed, func() {
		sealed.Detach()
		closeFn()
	}, nil
}
