package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/auth"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// handleJoin: verify the room credential, resolve the participant, then do
// the synchronous registration + broadcasts. Collaborator calls happen
// before any shared-state mutation so no lock spans I/O.
func (ctl *Controller) handleJoin(ctx context.Context, sess *core.Session, env Envelope) {
	if sess.State() == core.StateInRoom {
		ctl.sendTo(sess, encodeError(env.RequestID, "already in a room"))
		return
	}

	var p joinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.RoomToken == "" {
		ctl.sendTo(sess, encodeError(env.RequestID, "bad payload"))
		return
	}

	pid, err := ctl.RoomAuth.VerifyRoomToken(p.RoomToken)
	if err != nil {
		ctl.sendTo(sess, encodeError(env.RequestID, "invalid room token"))
		return
	}

	participant, err := ctl.Directory.ResolveParticipant(ctx, pid)
	if err != nil {
		if errors.Is(err, auth.ErrParticipantNotFound) {
			ctl.sendTo(sess, encodeError(env.RequestID, "participant not found"))
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("participant", string(pid)).Msg("resolve participant")
		ctl.sendTo(sess, encodeError(env.RequestID, "participant lookup failed"))
		return
	}

	media := domain.MediaState{Mic: toggle(p.Device.Mic), Cam: toggle(p.Device.Cam), Screen: domain.ToggleOff}
	if err := sess.EnterRoom(participant, media); err != nil {
		ctl.sendTo(sess, encodeError(env.RequestID, err.Error()))
		return
	}

	mid := participant.Meeting.ID
	ctl.acquireMeeting(mid)
	if err := ctl.Registry.Join(mid, pid, sess); err != nil {
		// Reconnect race: the same participant id is still registered from
		// an older connection. Evict it, then take its place.
		if old, ok := ctl.Registry.Get(mid, pid); ok {
			log.Warn().Str("module", "signal").Str("participant", string(pid)).Msg("evicting stale session on rejoin")
			ctl.teardown(old)
		}
		if err := ctl.Registry.Join(mid, pid, sess); err != nil {
			sess.LeaveRoom()
			ctl.releaseMeeting(mid)
			ctl.sendTo(sess, encodeError(env.RequestID, "join failed"))
			return
		}
	}

	peers := make([]core.PeerDTO, 0)
	for _, peer := range ctl.Registry.ListPeers(mid) {
		if peer == sess {
			continue
		}
		peers = append(peers, peer.Snapshot())
	}

	self := sess.Snapshot()
	ctl.sendTo(sess, encode(KindRoomJoined, env.RequestID, roomJoinedPayload{
		Meeting:         participant.Meeting,
		SelfParticipant: self,
		Peers:           peers,
	}))
	ctl.fanout(mid, encode(KindParticipantJoined, "", self), pid)
}

// handleLeave is the explicit InRoom -> Authenticated transition; the
// connection stays open.
func (ctl *Controller) handleLeave(ctx context.Context, sess *core.Session, env Envelope) {
	if !ctl.requireInRoom(sess, env) {
		return
	}
	pid, mid, ok := sess.LeaveRoom()
	if !ok {
		ctl.sendTo(sess, encodeError(env.RequestID, "not in a room"))
		return
	}
	ctl.sendTo(sess, encode(KindRoomLeft, env.RequestID, nil))
	ctl.finishLeave(sess, pid, mid)
}

// finishLeave runs the shared departure path for explicit leave, transport
// close, and moderation removal: mark the leave in the external store,
// deregister, announce, release the relay channel.
func (ctl *Controller) finishLeave(sess *core.Session, pid domain.ParticipantID, mid domain.MeetingID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ctl.Directory.RecordParticipantLeft(ctx, pid); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("participant", string(pid)).Msg("record leave failed")
		}
	}()

	ctl.Registry.Leave(mid, pid)
	ctl.Limiter.Forget(pid)
	ctl.fanout(mid, encode(KindParticipantLeft, "", participantLeftPayload{ParticipantID: pid}), "")
	ctl.releaseMeeting(mid)
	log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("participant", string(pid)).Str("meeting", string(mid)).Msg("left room")
}

func toggle(on bool) domain.ToggleState {
	if on {
		return domain.ToggleOn
	}
	return domain.ToggleOff
}
