package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"invite_mall/internal/service"
	"invite_mall/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	feedClientBuffer = 32
	feedWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// PayoutFeed pushes task lifecycle events to connected admin consoles. A
// console that falls behind misses events rather than slowing the engine.
type PayoutFeed struct {
	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewPayoutFeed() *PayoutFeed {
	return &PayoutFeed{clients: make(map[*feedClient]struct{})}
}

func (f *PayoutFeed) NotifyTask(ctx context.Context, ev service.TaskEvent) {
	out, err := json.Marshal(Message{
		Type: string(ev.Type),
		Payload: map[string]any{
			"task_id": ev.TaskID,
			"task_no": ev.TaskNo,
			"user_id": ev.UserID,
			"status":  ev.Status,
			"at":      ev.At,
		},
	})
	if err != nil {
		logger.Logger().Error("failed to marshal feed message", zap.Error(err))
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for cl := range f.clients {
		select {
		case cl.send <- out:
		default:
			logger.Logger().Warn("payout feed client too slow, event dropped",
				zap.String("task_id", ev.TaskID))
		}
	}
}

func (f *PayoutFeed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

func (f *PayoutFeed) handleWebSocket(c *gin.Context) {
	log := logger.Logger()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &feedClient{conn: conn, send: make(chan []byte, feedClientBuffer)}
	f.mu.Lock()
	f.clients[cl] = struct{}{}
	f.mu.Unlock()

	go f.writeLoop(cl)
	go f.readLoop(cl)
}

// readLoop only watches for the console going away.
func (f *PayoutFeed) readLoop(cl *feedClient) {
	defer f.remove(cl)

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Logger().Info("payout feed unexpected close", zap.Error(err))
			}
			return
		}
	}
}

func (f *PayoutFeed) writeLoop(cl *feedClient) {
	defer cl.conn.Close()

	for msg := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Logger().Info("failed to write feed message", zap.Error(err))
			f.remove(cl)
			return
		}
	}
}

func (f *PayoutFeed) remove(cl *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.clients[cl]; !ok {
		return
	}
	delete(f.clients, cl)
	close(cl.send)
	cl.conn.Close()
}
