package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/orderrelay/internal/app/orch"
	"github.com/dkeye/orderrelay/internal/core"
	"github.com/dkeye/orderrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *ConnectRateLimiter
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, limiter *ConnectRateLimiter, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &SignalWSController{Orch: o, Limiter: limiter, opts: opts}
}

// WsSignalConn is the websocket side of a room connection.
// It implements core.Transport.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and binds the socket to the room actor
// of key. The room key and role are validated by the router.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, key domain.RoomKey, role domain.Role) {
	token := c.GetString("client_token")
	if ctl.Limiter != nil && !ctl.Limiter.Allow(token) {
		log.Warn().Str("module", "signal").Str("token", token).Str("room", key.String()).Msg("connect rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)

	room, info, err := ctl.Orch.Connect(key, role, conn, token)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", key.String()).Str("role", string(role)).Msg("connection rejected")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room mismatch"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("room", key.String()).Str("conn", string(info.ID)).Str("role", string(role)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(room, conn)
}
