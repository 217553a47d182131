package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

type ListenerState int32

const (
	ListenerStateStopped ListenerState = iota
	ListenerStateStarting
	ListenerStateRunning
	ListenerStateStopping
	ListenerStateReconnecting
)

// WebSocketListener keeps a single connection to the invalidation feed and
// forwards every pushed event to the invalidation engine. It never writes
// application messages, only pings.
type WebSocketListener struct {
	ctx               context.Context
	cancel            context.CancelFunc
	logger            types.Logger
	config            *types.RealtimeConfig
	invalidator       types.Invalidator
	conn              *websocket.Conn
	connMu            sync.RWMutex
	reconnectCh       chan struct{}
	state             atomic.Value
	reconnectAttempts int32
	wg                sync.WaitGroup
}

func NewWebSocketListener(ctx context.Context, logger types.Logger, config *types.RealtimeConfig, invalidator types.Invalidator) (types.RealtimeListener, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrRealtimeDisabled
	}
	if config.URL == "" {
		return nil, types.ErrRealtimeConfigInvalid
	}
	if invalidator == nil {
		return nil, types.ErrRealtimeConfigInvalid
	}

	cfg := *config
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = types.Duration(5 * time.Second)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = types.Duration(54 * time.Second)
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = types.Duration(60 * time.Second)
	}

	listenerCtx, cancel := context.WithCancel(ctx)

	listener := &WebSocketListener{
		ctx:         listenerCtx,
		cancel:      cancel,
		logger:      logger,
		config:      &cfg,
		invalidator: invalidator,
		reconnectCh: make(chan struct{}, 1),
	}

	listener.state.Store(ListenerStateStopped)

	logger.Info("Realtime listener initialized",
		zap.String("url", cfg.URL),
		zap.Duration("reconnect_delay", cfg.ReconnectDelay.Std()),
		zap.Int("max_retries", cfg.MaxRetries))

	return listener, nil
}

func (w *WebSocketListener) Start() error {
	if !w.transitionState(ListenerStateStopped, ListenerStateStarting) {
		return types.ErrManagerAlreadyRunning
	}

	defer func() {
		if w.getState() == ListenerStateStarting {
			w.setState(ListenerStateRunning)
		}
	}()

	if err := w.connect(); err != nil {
		w.setState(ListenerStateStopped)
		w.logger.Error("Failed to establish initial connection", zap.Error(err))
		return types.WrapError(err, "failed to establish initial connection")
	}

	w.wg.Add(3)
	go func() {
		defer w.wg.Done()
		w.readPump()
	}()
	go func() {
		defer w.wg.Done()
		w.pingLoop()
	}()
	go func() {
		defer w.wg.Done()
		w.reconnectLoop()
	}()

	w.logger.Info("Realtime listener started successfully")
	return nil
}

func (w *WebSocketListener) Stop() error {
	if !w.transitionState(ListenerStateRunning, ListenerStateStopping) &&
		!w.transitionState(ListenerStateReconnecting, ListenerStateStopping) {
		return types.ErrManagerNotRunning
	}

	w.cancel()

	w.connMu.Lock()
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.logger.Debug("Failed to close connection", zap.Error(err))
		}
		w.conn = nil
	}
	w.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Realtime listener stopped gracefully")
	case <-time.After(10 * time.Second):
		w.logger.Warn("Realtime listener stop timeout, some components may not have stopped gracefully")
	}

	w.setState(ListenerStateStopped)
	return nil
}

func (w *WebSocketListener) IsRunning() bool {
	state := w.getState()
	return state == ListenerStateRunning || state == ListenerStateReconnecting
}

func (w *WebSocketListener) getState() ListenerState {
	return w.state.Load().(ListenerState)
}

func (w *WebSocketListener) setState(newState ListenerState) bool {
	currentState := w.getState()
	return w.state.CompareAndSwap(currentState, newState)
}

func (w *WebSocketListener) transitionState(from, to ListenerState) bool {
	return w.state.CompareAndSwap(from, to)
}

func (w *WebSocketListener) connect() error {
	w.logger.Debug("Attempting to connect to invalidation feed",
		zap.String("url", w.config.URL))

	dialCtx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(dialCtx, w.config.URL, nil)
	if err != nil {
		return types.WrapError(err, "failed to dial invalidation feed")
	}

	w.connMu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	w.connMu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait.Std()))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(w.config.PongWait.Std()))
		return nil
	})

	atomic.StoreInt32(&w.reconnectAttempts, 0)

	w.logger.Info("Connected to invalidation feed")
	return nil
}

func (w *WebSocketListener) reconnectLoop() {
	defer w.logger.Debug("Reconnect loop stopped")

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.reconnectCh:
			if !w.IsRunning() {
				return
			}

			if w.getState() == ListenerStateRunning {
				w.setState(ListenerStateReconnecting)
			}

			retryCount := atomic.LoadInt32(&w.reconnectAttempts)

			w.logger.Info("Starting reconnection attempt",
				zap.Int32("attempt", retryCount+1),
				zap.Int("max_retries", w.config.MaxRetries))

			if int(retryCount) >= w.config.MaxRetries {
				w.logger.Error("Max reconnection attempts reached, stopping listener")

				if w.transitionState(ListenerStateReconnecting, ListenerStateStopping) {
					w.cancel()
				}
				return
			}

			select {
			case <-time.After(w.config.ReconnectDelay.Std()):
			case <-w.ctx.Done():
				return
			}

			atomic.AddInt32(&w.reconnectAttempts, 1)

			if err := w.connect(); err != nil {
				w.logger.Error("Reconnection attempt failed",
					zap.Int32("attempt", atomic.LoadInt32(&w.reconnectAttempts)),
					zap.Error(err))

				w.safeReconnectTrigger()
				continue
			}

			w.setState(ListenerStateRunning)
			w.logger.Info("Successfully reconnected to invalidation feed")

			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.readPump()
			}()
		}
	}
}

func (w *WebSocketListener) safeReconnectTrigger() {
	select {
	case w.reconnectCh <- struct{}{}:
	case <-w.ctx.Done():
	default:
	}
}

func (w *WebSocketListener) readPump() {
	defer w.logger.Debug("Read pump stopped")

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_, messageData, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						w.logger.Debug("Invalidation feed connection closed", zap.Error(err))
					}
					return err
				}

				var event types.InvalidationEvent
				if err := utils.Unmarshal(messageData, &event); err != nil {
					w.logger.Error("Failed to unmarshal invalidation event", zap.Error(err))
					return nil
				}

				w.handleEvent(&event)
				return nil
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
				return
			}
		}
	}
}

func (w *WebSocketListener) pingLoop() {
	ticker := time.NewTicker(w.config.PingInterval.Std())
	defer func() {
		ticker.Stop()
		w.logger.Debug("Ping loop stopped")
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if !w.IsRunning() {
				return
			}

			success := w.withConnection(func(conn *websocket.Conn) error {
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				return conn.WriteMessage(websocket.PingMessage, nil)
			})

			if !success && w.IsRunning() {
				w.safeReconnectTrigger()
			}
		}
	}
}

func (w *WebSocketListener) withConnection(fn func(*websocket.Conn) error) bool {
	w.connMu.RLock()
	defer w.connMu.RUnlock()

	if w.conn == nil {
		return false
	}

	if err := fn(w.conn); err != nil {
		w.logger.Error("Invalidation feed operation failed", zap.Error(err))
		return false
	}

	return true
}

func (w *WebSocketListener) handleEvent(event *types.InvalidationEvent) {
	if len(event.Tags) == 0 {
		w.logger.Debug("Invalidation event without tags, ignoring",
			zap.String("source", event.Source))
		return
	}

	w.logger.Debug("Invalidation event received",
		zap.String("source", event.Source),
		zap.Int("tag_count", len(event.Tags)))

	if err := w.invalidator.InvalidateByTags(event.Tags); err != nil {
		w.logger.Error("Failed to apply invalidation event", zap.Error(err))
	}
}
