package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/ReviewHub/internal/adapters/rtc"
	"github.com/dkeye/ReviewHub/internal/app/orch"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

type Options struct {
	// AllowedOrigins empty or containing "*" accepts any origin.
	AllowedOrigins []string
	ReadLimit      int64
	PingPeriod     time.Duration
	SendBuffer     int
	ICEServers     []string
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	ctl := &SignalWSController{Orch: o, opts: opts}
	ctl.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     ctl.checkOrigin,
	}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	if slices.Contains(ctl.opts.AllowedOrigins, "*") || slices.Contains(ctl.opts.AllowedOrigins, origin) {
		return true
	}
	log.Warn().Str("module", "signal").Str("origin", origin).Msg("rejected origin")
	return false
}

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
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	// WriteControl may block until its deadline; senders see closed already.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}

// client is the adapter-side state of one socket.
type client struct {
	sid  core.ConnID
	conn *WsSignalConn

	mu   sync.Mutex
	peer *rtc.WebRTCConnection
}

func (cl *client) setPeer(p *rtc.WebRTCConnection) {
	cl.mu.Lock()
	old := cl.peer
	cl.peer = p
	cl.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (cl *client) getPeer() *rtc.WebRTCConnection {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.peer
}

// HandleSignal upgrades the request and runs the connection until either side closes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.ConnID(uuid.NewString())
	viewer := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("viewer", viewer).Msg("new WS connection")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	meta := domain.NewMember(string(sid), viewer, domain.UserID(c.GetString("user_id")))
	ctx = ctl.Orch.Connect(ctx, sid, meta, conn)

	cl := &client{sid: sid, conn: conn}
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cl)
}
