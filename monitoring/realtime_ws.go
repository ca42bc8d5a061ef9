package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartapi/history"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	clientBuffer   = 64
	historyBacklog = 256
)

// streamClient is one websocket subscriber.
type streamClient struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// HistoryHub fans history entries out to websocket clients as they are
// appended. Clients that fall behind are disconnected. When the hub itself
// falls historyBacklog entries behind, the log skips it; those misses are
// logged and counted in metrics.
type HistoryHub struct {
	clients     map[*streamClient]bool
	register    chan *streamClient
	unregister  chan *streamClient
	log         *history.Log
	entries     <-chan history.Entry
	unsubscribe func()
	dropped     uint64
	mu          sync.RWMutex
	upgrader    websocket.Upgrader
	metrics     *Metrics
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewHistoryHub subscribes to log immediately; entries appended before Run is
// called are buffered. metrics may be nil.
func NewHistoryHub(log *history.Log, allowedOrigin string, metrics *Metrics, logger *zap.Logger) *HistoryHub {
	ctx, cancel := context.WithCancel(context.Background())
	entries, unsubscribe := log.Subscribe(historyBacklog)

	return &HistoryHub{
		clients:     make(map[*streamClient]bool),
		register:    make(chan *streamClient),
		unregister:  make(chan *streamClient),
		log:         log,
		entries:     entries,
		unsubscribe: unsubscribe,
		dropped:     log.Dropped(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Run dispatches entries until Stop is called.
func (h *HistoryHub) Run() {
	defer close(h.done)
	defer h.unsubscribe()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("History stream client connected",
				zap.String("client_id", client.clientID),
				zap.Int("total", total),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("History stream client disconnected",
				zap.String("client_id", client.clientID),
				zap.Int("total", total),
			)

		case entry, ok := <-h.entries:
			if !ok {
				return
			}
			h.checkDropped()
			h.broadcast(entry)

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// checkDropped reports entries the log skipped since the last check. The
// counter is shared by all subscribers of the log.
func (h *HistoryHub) checkDropped() {
	total := h.log.Dropped()
	if total <= h.dropped {
		return
	}
	missed := total - h.dropped
	h.dropped = total
	h.logger.Warn("History stream fell behind, entries skipped", zap.Uint64("missed", missed))
	h.metrics.StreamDropped(missed)
}

func (h *HistoryHub) broadcast(entry history.Entry) {
	message, err := json.Marshal(entry)
	if err != nil {
		h.logger.Error("Failed to encode history entry", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			h.logger.Warn("Dropping slow history stream client", zap.String("client_id", client.clientID))
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Stop disconnects every client and waits for Run to return.
func (h *HistoryHub) Stop() {
	h.cancel()
	<-h.done
}

func (h *HistoryHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection.
func (h *HistoryHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{
		conn:     conn,
		send:     make(chan []byte, clientBuffer),
		clientID: uuid.NewString(),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

func (c *streamClient) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("WebSocket write error", zap.String("client_id", c.clientID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and unregisters on close.
func (c *streamClient) readPump(h *HistoryHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.String("client_id", c.clientID), zap.Error(err))
			}
			return
		}
	}
}
