package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saiset-co/sai-feed/logger"
	"github.com/saiset-co/sai-feed/types"
)

type captureInvalidator struct {
	tags chan []types.Tag
}

func (c *captureInvalidator) InvalidateByTags(tags []types.Tag) error {
	c.tags <- tags
	return nil
}

func newEventServer(t *testing.T, events ...types.InvalidationEvent) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for _, event := range events {
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}

		// Hold the connection open so the listener does not reconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestListenerForwardsPushedInvalidations(t *testing.T) {
	server := newEventServer(t, types.InvalidationEvent{
		Tags:   []types.Tag{types.PostTag(42), types.PostListTag()},
		Source: "test",
	})
	defer server.Close()

	invalidator := &captureInvalidator{tags: make(chan []types.Tag, 1)}

	listener, err := NewWebSocketListener(context.Background(), logger.NewNop(), &types.RealtimeConfig{
		Enabled: true,
		URL:     wsURL(server),
	}, invalidator)
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	if err := listener.Start(); err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	defer listener.Stop()

	select {
	case tags := <-invalidator.tags:
		if len(tags) != 2 {
			t.Fatalf("expected 2 tags, got %d", len(tags))
		}
		if tags[0] != types.PostTag(42) || tags[1] != types.PostListTag() {
			t.Errorf("unexpected tags: %+v", tags)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pushed invalidation event never reached the invalidator")
	}
}

func TestListenerIgnoresEventsWithoutTags(t *testing.T) {
	server := newEventServer(t,
		types.InvalidationEvent{Source: "empty"},
		types.InvalidationEvent{Tags: []types.Tag{types.PostTag(7)}},
	)
	defer server.Close()

	invalidator := &captureInvalidator{tags: make(chan []types.Tag, 2)}

	listener, err := NewWebSocketListener(context.Background(), logger.NewNop(), &types.RealtimeConfig{
		Enabled: true,
		URL:     wsURL(server),
	}, invalidator)
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	if err := listener.Start(); err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	defer listener.Stop()

	select {
	case tags := <-invalidator.tags:
		// The tagless event must have been skipped, not delivered empty.
		if len(tags) != 1 || tags[0] != types.PostTag(7) {
			t.Errorf("unexpected tags: %+v", tags)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tagged event never reached the invalidator")
	}
}

func TestNewListenerRejectsBadConfig(t *testing.T) {
	invalidator := &captureInvalidator{tags: make(chan []types.Tag, 1)}

	_, err := NewWebSocketListener(context.Background(), logger.NewNop(), nil, invalidator)
	if !types.IsError(err, types.ErrRealtimeDisabled) {
		t.Errorf("nil config error = %v, want %v", err, types.ErrRealtimeDisabled)
	}

	_, err = NewWebSocketListener(context.Background(), logger.NewNop(), &types.RealtimeConfig{Enabled: true}, invalidator)
	if !types.IsError(err, types.ErrRealtimeConfigInvalid) {
		t.Errorf("missing url error = %v, want %v", err, types.ErrRealtimeConfigInvalid)
	}

	_, err = NewWebSocketListener(context.Background(), logger.NewNop(), &types.RealtimeConfig{Enabled: true, URL: "ws://x"}, nil)
	if !types.IsError(err, types.ErrRealtimeConfigInvalid) {
		t.Errorf("nil invalidator error = %v, want %v", err, types.ErrRealtimeConfigInvalid)
	}
}
