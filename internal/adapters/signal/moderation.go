package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// handleModerationMute force-mutes a target. If the target is connected to
// this node the mute applies here; otherwise a command goes out so the node
// holding the target applies it. Either way the requester gets no direct
// response beyond the resulting media.changed broadcast.
func (ctl *Controller) handleModerationMute(sess *core.Session, env Envelope) {
	target, ok := ctl.moderationTarget(sess, env)
	if !ok {
		return
	}
	mid := sess.MeetingID()
	by := sess.ParticipantID()

	if ctl.muteLocal(mid, target, by) {
		return
	}
	ctl.Relay.PublishCommand(mid, app.RelayCommand{Action: "mute", Target: target, By: by})
}

// muteLocal applies the mute to a locally-connected target. Returns false
// when the target is not here; that is not an error to the sender.
func (ctl *Controller) muteLocal(mid domain.MeetingID, target, by domain.ParticipantID) bool {
	victim, ok := ctl.Registry.Get(mid, target)
	if !ok {
		return false
	}
	victim.ForceMicOff()
	ctl.sendTo(victim, encode(KindModerationMuted, "", moderationMutedPayload{By: by}))
	ctl.fanout(mid, encode(KindMediaChanged, "", mediaChangedPayload{
		ParticipantID: target,
		Patch:         domain.MediaState{Mic: domain.ToggleOff},
	}), "")
	log.Info().Str("module", "signal").Str("target", string(target)).Str("by", string(by)).Msg("participant muted")
	return true
}

// handleModerationRemove kicks a target out of the room. The target is
// notified before removal, then runs the normal departure path; its
// connection stays open in the Authenticated state.
func (ctl *Controller) handleModerationRemove(ctx context.Context, sess *core.Session, env Envelope) {
	target, ok := ctl.moderationTarget(sess, env)
	if !ok {
		return
	}
	mid := sess.MeetingID()
	by := sess.ParticipantID()

	if ctl.removeLocal(mid, target, by) {
		return
	}
	ctl.Relay.PublishCommand(mid, app.RelayCommand{Action: "remove", Target: target, By: by})
}

func (ctl *Controller) removeLocal(mid domain.MeetingID, target, by domain.ParticipantID) bool {
	victim, ok := ctl.Registry.Get(mid, target)
	if !ok {
		return false
	}
	ctl.sendTo(victim, encode(KindRoomKicked, "", roomKickedPayload{By: by, Reason: "removed by moderator"}))
	pid, vmid, left := victim.LeaveRoom()
	if !left {
		return true
	}
	ctl.finishLeave(victim, pid, vmid)
	log.Info().Str("module", "signal").Str("target", string(target)).Str("by", string(by)).Msg("participant removed")
	return true
}

// applyRelayCommand runs a cross-node moderation command if the target is
// connected here. Commands are acted on by at most one node, so applying
// them never echoes.
func (ctl *Controller) applyRelayCommand(mid domain.MeetingID, cmd app.RelayCommand) {
	switch cmd.Action {
	case "mute":
		ctl.muteLocal(mid, cmd.Target, cmd.By)
	case "remove":
		ctl.removeLocal(mid, cmd.Target, cmd.By)
	default:
		log.Warn().Str("module", "signal").Str("action", cmd.Action).Msg("unknown relay command dropped")
	}
}

// moderationTarget runs the shared preconditions for moderation messages:
// in a room, moderator role, parseable target.
func (ctl *Controller) moderationTarget(sess *core.Session, env Envelope) (domain.ParticipantID, bool) {
	if !ctl.requireInRoom(sess, env) {
		return "", false
	}
	if !sess.Role().CanModerate() {
		ctl.sendTo(sess, encodeError(env.RequestID, "insufficient role"))
		return "", false
	}
	var p targetPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.ParticipantID == "" {
		ctl.sendTo(sess, encodeError(env.RequestID, "bad payload"))
		return "", false
	}
	if p.ParticipantID == sess.ParticipantID() {
		ctl.sendTo(sess, encodeError(env.RequestID, "cannot moderate yourself"))
		return "", false
	}
	return p.ParticipantID, true
}
