package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

var _ core.SignalConnection = (*wsSignalConn)(nil)

// Controller is the WebSocket gateway: it owns connection lifecycle, the
// per-meeting relay subscriptions, and the handler set the router
// dispatches to.
type Controller struct {
	Registry  *app.RoomRegistry
	Relay     app.Relay
	Policy    app.Policy
	Access    core.AccessTokenVerifier
	RoomAuth  core.RoomTokenVerifier
	Directory core.ParticipantDirectory
	Limiter   *MessageRateLimiter
	Cfg       *config.Config

	mu   sync.Mutex
	subs map[domain.MeetingID]*meetingSub
}

type meetingSub struct {
	unsub func()
	refs  int
}

func NewController(
	cfg *config.Config,
	registry *app.RoomRegistry,
	relay app.Relay,
	policy app.Policy,
	access core.AccessTokenVerifier,
	roomAuth core.RoomTokenVerifier,
	directory core.ParticipantDirectory,
) *Controller {
	return &Controller{
		Registry:  registry,
		Relay:     relay,
		Policy:    policy,
		Access:    access,
		RoomAuth:  roomAuth,
		Directory: directory,
		Limiter:   NewMessageRateLimiter(cfg.ChatRateLimit, cfg.ChatRateWindow),
		Cfg:       cfg,
		subs:      make(map[domain.MeetingID]*meetingSub),
	}
}

// wsSignalConn implements core.SignalConnection over a gorilla conn with a
// buffered send channel. TrySend never blocks: a full buffer is reported as
// backpressure and left to the policy.
type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
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
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the connection and starts its pump pair. The
// session starts Unauthenticated; everything after that is message-driven.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	sess := core.NewSession(sid, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sess, conn)
	}()
}

// teardown finalizes a session: the InRoom cleanup runs exactly once even
// when transport close races an in-flight handler or a duplicate-join
// eviction.
func (ctl *Controller) teardown(sess *core.Session) {
	sess.Close(func(pid domain.ParticipantID, mid domain.MeetingID, wasInRoom bool) {
		if wasInRoom {
			ctl.finishLeave(sess, pid, mid)
		}
	})
	sess.Conn().Close()
}

// sendTo delivers a direct response to one session, logging instead of
// failing the caller when the socket is dead.
func (ctl *Controller) sendTo(sess *core.Session, frame core.Frame) {
	if err := sess.Conn().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("direct send failed")
	}
}

// fanout performs the paired local broadcast + relay publication for one
// event. The pair must both happen or both be skipped; splitting them
// desyncs nodes.
func (ctl *Controller) fanout(mid domain.MeetingID, frame core.Frame, exclude domain.ParticipantID) {
	ctl.broadcastLocal(mid, frame, exclude)
	ctl.Relay.PublishEvent(mid, frame)
}

// broadcastLocal is the relay-originated path: deliver to local sessions
// without re-publishing, so events never echo between nodes.
func (ctl *Controller) broadcastLocal(mid domain.MeetingID, frame core.Frame, exclude domain.ParticipantID) {
	res := ctl.Registry.Broadcast(mid, frame, exclude)
	for _, slow := range res.Dropped {
		if ctl.Policy == nil {
			break
		}
		switch ctl.Policy.OnBackPressure(mid, slow) {
		case app.KickMember:
			log.Warn().Str("module", "signal").Str("participant", string(slow.ParticipantID())).Msg("kicking slow consumer")
			ctl.teardown(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// acquireMeeting subscribes to the meeting's relay channel on first local
// join and refcounts subsequent ones.
func (ctl *Controller) acquireMeeting(mid domain.MeetingID) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if sub, ok := ctl.subs[mid]; ok {
		sub.refs++
		return
	}
	unsub, err := ctl.Relay.Subscribe(mid, func(msg app.RelayMessage) {
		ctl.onRelayMessage(mid, msg)
	})
	if err != nil {
		// Local-node delivery continues unaffected.
		log.Warn().Err(err).Str("module", "signal").Str("meeting", string(mid)).Msg("relay subscribe failed")
		unsub = func() {}
	}
	ctl.subs[mid] = &meetingSub{unsub: unsub, refs: 1}
}

func (ctl *Controller) releaseMeeting(mid domain.MeetingID) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	sub, ok := ctl.subs[mid]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs > 0 {
		return
	}
	delete(ctl.subs, mid)
	sub.unsub()
}

// onRelayMessage handles traffic from other nodes: events are broadcast
// locally (never re-published), commands are applied if the target is here.
func (ctl *Controller) onRelayMessage(mid domain.MeetingID, msg app.RelayMessage) {
	if msg.Event != nil {
		ctl.broadcastLocal(mid, core.Frame(msg.Event), "")
	}
	if msg.Command != nil {
		ctl.applyRelayCommand(mid, *msg.Command)
	}
}
