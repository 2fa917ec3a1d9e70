package signal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

func TestJoinFirstParticipant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sess, conn := h.connect("a")

	h.send(t, sess, KindAuthenticate, "r1", authenticatePayload{AccessToken: "access:u1"})
	oks := conn.byKind(t, KindAuthOK)
	req.Len(oks, 1)
	req.Equal(domain.UserID("u1"), decodePayload[authOKPayload](t, oks[0]).UserID)

	h.joinMeeting(t, sess, "pA", domain.RoleHost)

	joined := conn.byKind(t, KindRoomJoined)
	req.Len(joined, 1)
	p := decodePayload[roomJoinedPayload](t, joined[0])
	req.Equal(domain.MeetingID("m1"), p.Meeting.ID)
	req.Equal(domain.ParticipantID("pA"), p.SelfParticipant.ParticipantID)
	req.Equal(domain.RoleHost, p.SelfParticipant.Role)
	req.Equal(domain.ToggleOn, p.SelfParticipant.Media.Mic)
	req.Equal(domain.ToggleOff, p.SelfParticipant.Media.Screen)
	req.Empty(p.Peers)

	req.Equal(1, h.ctl.Registry.RoomSize("m1"))
}

func TestJoinSecondParticipantSeesFirst(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	a, connA := h.connect("a")
	h.authenticate(t, a, "u1")
	h.joinMeeting(t, a, "pA", domain.RoleHost)
	connA.reset()

	b, connB := h.connect("b")
	h.authenticate(t, b, "u2")
	h.joinMeeting(t, b, "pB", domain.RoleGuest)

	// A hears about B.
	joinedEvts := connA.byKind(t, KindParticipantJoined)
	req.Len(joinedEvts, 1)
	req.Equal(domain.ParticipantID("pB"), decodePayload[core.PeerDTO](t, joinedEvts[0]).ParticipantID)

	// B's snapshot contains A.
	joined := connB.byKind(t, KindRoomJoined)
	req.Len(joined, 1)
	p := decodePayload[roomJoinedPayload](t, joined[0])
	req.Len(p.Peers, 1)
	req.Equal(domain.ParticipantID("pA"), p.Peers[0].ParticipantID)

	// B does not receive its own participant.joined.
	req.Empty(connB.byKind(t, KindParticipantJoined))

	// The join event went to the relay too.
	req.Positive(h.relay.eventCount("m1"))
}

func TestJoinWhileInRoomRejected(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sess, conn := h.connect("a")
	h.authenticate(t, sess, "u1")
	h.joinMeeting(t, sess, "pA", domain.RoleGuest)
	conn.reset()

	h.send(t, sess, KindRoomJoin, "r2", joinPayload{RoomToken: "room:pA"})
	errs := conn.byKind(t, KindError)
	req.Len(errs, 1)
	req.Equal("already in a room", errs[0].Error)
	req.Equal(1, h.ctl.Registry.RoomSize("m1"))
}

func TestJoinInvalidRoomToken(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sess, conn := h.connect("a")
	h.authenticate(t, sess, "u1")

	h.send(t, sess, KindRoomJoin, "r1", joinPayload{RoomToken: "bogus"})
	errs := conn.byKind(t, KindError)
	req.Len(errs, 1)
	req.Equal("invalid room token", errs[0].Error)
	req.Equal(core.StateAuthenticated, sess.State())
}

func TestJoinUnknownParticipant(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sess, conn := h.connect("a")
	h.authenticate(t, sess, "u1")

	h.send(t, sess, KindRoomJoin, "r1", joinPayload{RoomToken: "room:ghost"})
	errs := conn.byKind(t, KindError)
	req.Len(errs, 1)
	req.Equal(core.StateAuthenticated, sess.State())
	req.Zero(h.ctl.Registry.RoomSize("m1"))
}

func TestLeaveRoundTrip(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	sess, conn := h.connect("a")
	h.authenticate(t, sess, "u1")
	h.joinMeeting(t, sess, "pA", domain.RoleGuest)

	h.send(t, sess, KindRoomLeave, "r2", nil)

	req.Len(conn.byKind(t, KindRoomLeft), 1)
	req.Equal(core.StateAuthenticated, sess.State())
	req.Zero(h.ctl.Registry.RoomSize("m1"))
	req.Empty(h.ctl.Registry.ListPeers("m1"))
	req.Equal(domain.ParticipantID("pA"), h.dir.waitLeft(t))

	// Second leave is an error, not a double-decrement.
	h.send(t, sess, KindRoomLeave, "r3", nil)
	errs := conn.byKind(t, KindError)
	req.Len(errs, 1)
	req.Equal("not in a room", errs[0].Error)
	req.Zero(h.ctl.Registry.RoomSize("m1"))
}

func TestLeaveNotifiesPeers(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	a, _ := h.connect("a")
	h.authenticate(t, a, "u1")
	h.joinMeeting(t, a, "pA", domain.RoleHost)

	b, connB := h.connect("b")
	h.authenticate(t, b, "u2")
	h.joinMeeting(t, b, "pB", domain.RoleGuest)
	connB.reset()

	h.send(t, a, KindRoomLeave, "", nil)

	left := connB.byKind(t, KindParticipantLeft)
	req.Len(left, 1)
	req.Equal(domain.ParticipantID("pA"), decodePayload[participantLeftPayload](t, left[0]).ParticipantID)
}

func TestAbruptCloseRunsLeaveOnce(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	a, connA := h.connect("a")
	h.authenticate(t, a, "u1")
	h.joinMeeting(t, a, "pA", domain.RoleHost)

	b, connB := h.connect("b")
	h.authenticate(t, b, "u2")
	h.joinMeeting(t, b, "pB", domain.RoleGuest)
	connB.reset()

	// Socket close races nothing here, but teardown twice must still clean
	// up exactly once.
	h.ctl.teardown(a)
	h.ctl.teardown(a)

	left := connB.byKind(t, KindParticipantLeft)
	req.Len(left, 1)
	req.Equal(domain.ParticipantID("pA"), decodePayload[participantLeftPayload](t, left[0]).ParticipantID)
	_, ok := h.ctl.Registry.Get("m1", "pA")
	req.False(ok)
	req.Equal(1, h.ctl.Registry.RoomSize("m1"))
	req.True(connA.isClosed())
	req.Equal(core.StateClosed, a.State())
}

func TestDuplicateJoinEvictsStaleSession(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	stale, staleConn := h.connect("old")
	h.authenticate(t, stale, "u1")
	h.joinMeeting(t, stale, "pA", domain.RoleGuest)

	fresh, freshConn := h.connect("new")
	h.authenticate(t, fresh, "u1")
	h.send(t, fresh, KindRoomJoin, "", joinPayload{RoomToken: "room:pA", Device: devicePayload{Mic: true}})

	req.Equal(core.StateInRoom, fresh.State())
	req.True(staleConn.isClosed())
	req.Equal(core.StateClosed, stale.State())

	got, ok := h.ctl.Registry.Get("m1", "pA")
	req.True(ok)
	req.Same(fresh, got)
	req.Equal(1, h.ctl.Registry.RoomSize("m1"))
	req.Len(freshConn.byKind(t, KindRoomJoined), 1)
}
