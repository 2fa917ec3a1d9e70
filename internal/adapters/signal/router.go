package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

// dispatch routes one inbound frame. auth.authenticate is the only kind
// usable before authentication; room-scoped preconditions stay with their
// handlers. A panicking handler answers with a generic error and leaves the
// connection up.
func (ctl *Controller) dispatch(ctx context.Context, sess *core.Session, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sess.ID())).Msg("malformed envelope")
		ctl.sendTo(sess, encodeError("", "malformed envelope"))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("module", "signal").Str("kind", string(env.Kind)).Msg("handler panic")
			ctl.sendTo(sess, encodeError(env.RequestID, "internal error"))
		}
	}()

	if env.Kind == KindAuthenticate {
		ctl.handleAuthenticate(sess, env)
		return
	}
	if sess.State() < core.StateAuthenticated || sess.State() == core.StateClosed {
		ctl.sendTo(sess, encodeError(env.RequestID, "authentication required"))
		return
	}

	switch env.Kind {
	case KindRoomJoin:
		ctl.handleJoin(ctx, sess, env)
	case KindRoomLeave:
		ctl.handleLeave(ctx, sess, env)
	case KindRTCSignal:
		ctl.handleRTCSignal(sess, env)
	case KindMediaUpdate:
		ctl.handleMediaUpdate(sess, env)
	case KindChatSend:
		ctl.handleChatSend(sess, env)
	case KindReactionSend:
		ctl.handleReactionSend(sess, env)
	case KindHandRaise:
		ctl.handleHand(sess, env, true)
	case KindHandLower:
		ctl.handleHand(sess, env, false)
	case KindModerationMute:
		ctl.handleModerationMute(sess, env)
	case KindModerationRemove:
		ctl.handleModerationRemove(ctx, sess, env)
	case KindLobbyAdmit:
		ctl.handleLobby(sess, env, true)
	case KindLobbyReject:
		ctl.handleLobby(sess, env, false)
	default:
		log.Warn().Str("module", "signal").Str("kind", string(env.Kind)).Msg("unknown kind")
		ctl.sendTo(sess, encodeError(env.RequestID, "unknown message kind"))
	}
}

// requireInRoom is the shared room-membership precondition.
func (ctl *Controller) requireInRoom(sess *core.Session, env Envelope) bool {
	if sess.State() != core.StateInRoom {
		ctl.sendTo(sess, encodeError(env.RequestID, "not in a room"))
		return false
	}
	return true
}
