package signal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// fakeConn records every frame instead of writing to a socket.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) byKind(t *testing.T, kind Kind) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range c.envelopes(t) {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// fakeTokens accepts "access:<userId>" and "room:<participantId>".
type fakeTokens struct{}

func (fakeTokens) VerifyAccessToken(token string) (domain.UserID, error) {
	if uid, ok := strings.CutPrefix(token, "access:"); ok {
		return domain.UserID(uid), nil
	}
	return "", errors.New("invalid token")
}

func (fakeTokens) VerifyRoomToken(token string) (domain.ParticipantID, error) {
	if pid, ok := strings.CutPrefix(token, "room:"); ok {
		return domain.ParticipantID(pid), nil
	}
	return "", errors.New("invalid token")
}

type fakeDirectory struct {
	mu           sync.Mutex
	participants map[domain.ParticipantID]*domain.Participant
	resolves     int
	lefts        chan domain.ParticipantID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		participants: make(map[domain.ParticipantID]*domain.Participant),
		lefts:        make(chan domain.ParticipantID, 16),
	}
}

func (d *fakeDirectory) add(p *domain.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants[p.ID] = p
}

func (d *fakeDirectory) ResolveParticipant(_ context.Context, id domain.ParticipantID) (*domain.Participant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolves++
	p, ok := d.participants[id]
	if !ok {
		return nil, errors.New("participant not found")
	}
	cp := *p
	return &cp, nil
}

func (d *fakeDirectory) RecordParticipantLeft(_ context.Context, id domain.ParticipantID) error {
	d.lefts <- id
	return nil
}

func (d *fakeDirectory) resolveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolves
}

func (d *fakeDirectory) waitLeft(t *testing.T) domain.ParticipantID {
	t.Helper()
	select {
	case pid := <-d.lefts:
		return pid
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RecordParticipantLeft")
		return ""
	}
}

type fakeRelay struct {
	mu       sync.Mutex
	events   map[domain.MeetingID][]core.Frame
	commands []app.RelayCommand
	subs     map[domain.MeetingID]func(app.RelayMessage)
	unsubbed int
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		events: make(map[domain.MeetingID][]core.Frame),
		subs:   make(map[domain.MeetingID]func(app.RelayMessage)),
	}
}

func (r *fakeRelay) PublishEvent(mid domain.MeetingID, event core.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[mid] = append(r.events[mid], event)
}

func (r *fakeRelay) PublishCommand(mid domain.MeetingID, cmd app.RelayCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *fakeRelay) Subscribe(mid domain.MeetingID, fn func(app.RelayMessage)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[mid] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, mid)
		r.unsubbed++
	}, nil
}

func (r *fakeRelay) Close() {}

func (r *fakeRelay) eventCount(mid domain.MeetingID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[mid])
}

func (r *fakeRelay) commandCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

func (r *fakeRelay) lastCommand(t *testing.T) app.RelayCommand {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.commands)
	return r.commands[len(r.commands)-1]
}

// inject feeds a message from another node into the meeting subscription.
func (r *fakeRelay) inject(t *testing.T, mid domain.MeetingID, msg app.RelayMessage) {
	t.Helper()
	r.mu.Lock()
	fn, ok := r.subs[mid]
	r.mu.Unlock()
	require.True(t, ok, "no subscription for meeting %s", mid)
	fn(msg)
}

type harness struct {
	ctl   *Controller
	relay *fakeRelay
	dir   *fakeDirectory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		SendBuffer:     32,
		PingPeriod:     54 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadLimit:      32768,
		ChatRateLimit:  100,
		ChatRateWindow: time.Minute,
	}
	relay := newFakeRelay()
	dir := newFakeDirectory()
	ctl := NewController(cfg, app.NewRoomRegistry(), relay, app.SimplePolicy{}, fakeTokens{}, fakeTokens{}, dir)
	return &harness{ctl: ctl, relay: relay, dir: dir}
}

func (h *harness) connect(id string) (*core.Session, *fakeConn) {
	conn := &fakeConn{}
	return core.NewSession(core.SessionID(id), conn), conn
}

func (h *harness) send(t *testing.T, sess *core.Session, kind Kind, requestID string, payload any) {
	t.Helper()
	env := Envelope{Kind: kind, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		env.Payload = data
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	h.ctl.dispatch(context.Background(), sess, raw)
}

func (h *harness) authenticate(t *testing.T, sess *core.Session, userID string) {
	t.Helper()
	h.send(t, sess, KindAuthenticate, "", authenticatePayload{AccessToken: "access:" + userID})
	require.Equal(t, core.StateAuthenticated, sess.State())
}

// joinMeeting registers the participant in the directory and joins it.
func (h *harness) joinMeeting(t *testing.T, sess *core.Session, pid domain.ParticipantID, role domain.Role) {
	t.Helper()
	h.dir.add(&domain.Participant{
		ID:          pid,
		UserID:      sess.UserID(),
		Role:        role,
		DisplayName: string(pid),
		Meeting:     domain.Meeting{ID: "m1"},
	})
	h.send(t, sess, KindRoomJoin, "", joinPayload{
		RoomToken: "room:" + string(pid),
		Device:    devicePayload{Mic: true, Cam: true},
	})
	require.Equal(t, core.StateInRoom, sess.State())
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	return out
}
