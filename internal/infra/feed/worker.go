package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"etf_cda/internal/domain"
	"etf_cda/internal/event"
	"etf_cda/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries   = 10
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Dispatcher receives decoded events in arrival order.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.Event) error
}

// Worker keeps a websocket connection to the market open, feeds decoded
// events to a Dispatcher and writes order and resync requests back.
type Worker struct {
	url     string
	token   string
	trader  string
	sink    Dispatcher
	backoff infra.Backoff
	metrics *infra.Metrics

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorker creates a market feed worker. token, if set, is sent as a bearer
// Authorization header on every dial.
func NewWorker(url, token, trader string, sink Dispatcher) *Worker {
	return &Worker{
		url:     url,
		token:   token,
		trader:  trader,
		sink:    sink,
		backoff: infra.DefaultBackoff,
		metrics: infra.GlobalMetrics,
	}
}

// Connect starts the connection loop with automatic reconnection.
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Feed panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Feed connection loop stopped")
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			if !domain.IsRetriable(err) {
				slog.Error("Feed connection rejected, giving up", slog.Any("error", err))
				return
			}
			slog.Warn("Feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := w.backoff.Delay(retryCount)
			retryCount++
			if retryCount > maxRetries {
				slog.Error("Feed max retries exceeded, resetting counter")
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		w.readLoop(ctx)
	}
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
	}

	conn, resp, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return domain.NewFatalNetworkError("dial", fmt.Errorf("%w: status %d", domain.ErrConnectionFailed, resp.StatusCode))
		}
		return domain.NewNetworkError("dial", fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err))
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	w.metrics.IncrementConnections()

	slog.Info("Feed connected", slog.String("url", w.url))
	return nil
}

func (w *Worker) readLoop(ctx context.Context) {
	pingDone := make(chan struct{})
	defer close(pingDone)
	go w.pingLoop(pingDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Feed read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		if err := w.handleMessage(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("Feed dispatch failed", slog.Any("error", err))
		}
	}
}

func (w *Worker) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := w.threadSafeWrite(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one frame and forwards it. Malformed frames are
// counted and dropped.
func (w *Worker) handleMessage(ctx context.Context, msg []byte) error {
	ev, err := Decode(msg)
	if err != nil {
		w.metrics.RecordMalformed()
		slog.Warn("Malformed market message", slog.Any("error", err))
		return nil
	}
	if ev == nil {
		return nil
	}
	return w.sink.Dispatch(ctx, ev)
}

// SubmitOrder sends a new order to the market.
func (w *Worker) SubmitOrder(ctx context.Context, req domain.OrderRequest) error {
	b, err := EncodeOrder(w.trader, req)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

// RequestResync asks the market for a full snapshot of trader.
func (w *Worker) RequestResync(ctx context.Context, trader string) error {
	b, err := EncodeResyncRequest(trader)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *Worker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return domain.NewNetworkError("write", domain.ErrConnectionFailed)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(msgType, data); err != nil {
		return domain.NewNetworkError("write", err)
	}
	return nil
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		w.metrics.DecrementConnections()
	}
	w.connected = false
}

// Disconnect stops the connection loop and closes the socket.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	slog.Info("Feed disconnected")
}

// IsConnected returns connection status.
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
