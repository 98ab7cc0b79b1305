package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	drepo "Aegis/internal/domain/repository"
	"Aegis/pkg/logger"
	"Aegis/pkg/util"
	"Aegis/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State of a connection. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Config tunes a connection.
type Config struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	MaxMessageBytes   int64
}

func (c *Config) withDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
}

// Conn owns one websocket: a reader loop, a single writer goroutine and the
// heartbeat ticker. Only the writer touches the socket for writes.
type Conn struct {
	id      string
	userID  string
	ws      *websocket.Conn
	cfg     Config
	lgr     *logger.Logger
	metrics drepo.Metrics
	now     func() time.Time

	state     atomic.Int32
	send      chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	writerWG  sync.WaitGroup

	heartbeats atomic.Int64
	acks       atomic.Int64
}

// NewConn wraps an upgraded socket. userID is empty for anonymous clients.
func NewConn(ws *websocket.Conn, userID string, cfg Config, lgr *logger.Logger, metrics drepo.Metrics) *Conn {
	cfg.withDefaults()
	c := &Conn{
		id:      uuid.NewString(),
		userID:  userID,
		ws:      ws,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
		send:    make(chan []byte, cfg.SendBuffer),
	}
	c.lgr = lgr.With(logger.String("conn_id", c.id), logger.String("user_id", userID))
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }
func (c *Conn) State() State   { return State(c.state.Load()) }

// Heartbeats returns the number of heartbeat frames written.
func (c *Conn) Heartbeats() int64 { return c.heartbeats.Load() }

// Run opens the connection and blocks until it is closed by the client, an
// I/O error, ctx, or Close.
func (c *Conn) Run(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		c.cancel()
		return
	}
	c.metrics.RealtimeConnected(1)
	c.lgr.Debug("realtime connection open")

	c.writerWG.Add(1)
	go c.writeLoop()

	go func() {
		<-c.ctx.Done()
		c.Close()
	}()

	c.readLoop()
	c.Close()
	c.writerWG.Wait()
}

// Close moves the connection to CLOSED. It is safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))
		if c.cancel != nil {
			c.cancel()
		}
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			c.now().Add(time.Second))
		_ = c.ws.Close()
		if prev == StateOpen {
			c.metrics.RealtimeConnected(-1)
			c.lgr.Debug("realtime connection closed",
				logger.Int64("heartbeats", c.heartbeats.Load()),
				logger.Int64("acks", c.acks.Load()))
		}
	})
}

// Send queues v for the writer. It reports false when the connection is not
// open or its buffer is full.
func (c *Conn) Send(v interface{}) bool {
	if c.State() != StateOpen {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.lgr.Warn("encode frame failed", logger.Error(err))
		return false
	}
	select {
	case c.send <- b:
		return true
	case <-c.ctx.Done():
		return false
	default:
		c.lgr.Warn("send buffer full, frame dropped")
		return false
	}
}

func (c *Conn) readLoop() {
	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && c.State() == StateOpen {
				c.lgr.Debug("realtime read error", logger.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			c.lgr.Warn("ignoring non-text frame", logger.Int("message_type", mt))
			continue
		}
		c.handle(data)
	}
}

// handle acks well-formed orderflow frames. Anything else is logged and
// ignored; the connection stays open.
func (c *Conn) handle(data []byte) {
	receivedAt := util.UnixMillis(c.now())

	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.metrics.RecordRealtimeMessage("in", "malformed")
		c.lgr.Warn("malformed realtime message", logger.Error(err))
		return
	}
	if err := validation.Struct(c.ctx, &msg); err != nil {
		c.metrics.RecordRealtimeMessage("in", "malformed")
		c.lgr.Warn("unsupported realtime message",
			logger.String("type", msg.Type),
			logger.Error(err))
		return
	}

	c.metrics.RecordRealtimeMessage("in", msg.Type)
	if c.Send(AckFrame{Type: TypeAck, ReceivedAt: receivedAt, CorrelationID: msg.CorrelationID}) {
		c.acks.Add(1)
		c.metrics.RecordRealtimeMessage("out", TypeAck)
	}
}

func (c *Conn) writeLoop() {
	defer c.writerWG.Done()
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case b := <-c.send:
			if err := c.write(b); err != nil {
				c.fail(err)
				return
			}
		case t := <-ticker.C:
			if c.State() != StateOpen {
				return
			}
			b, _ := json.Marshal(HeartbeatFrame{Type: TypeHeartbeat, Timestamp: util.UnixMillis(t)})
			if err := c.write(b); err != nil {
				c.fail(err)
				return
			}
			c.heartbeats.Add(1)
			c.metrics.RecordRealtimeMessage("out", TypeHeartbeat)
		}
	}
}

func (c *Conn) write(b []byte) error {
	_ = c.ws.SetWriteDeadline(c.now().Add(c.cfg.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) fail(err error) {
	c.lgr.Debug("realtime write failed", logger.Error(err))
	c.Close()
}
