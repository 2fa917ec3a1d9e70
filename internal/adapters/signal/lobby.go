package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// handleLobby notifies a waiting participant of the host's decision. Host
// only (cohosts cannot admit). No broadcast: the decision concerns one
// participant. A target absent locally is dropped like any other
// point-to-point miss.
func (ctl *Controller) handleLobby(sess *core.Session, env Envelope, admitted bool) {
	if !ctl.requireInRoom(sess, env) {
		return
	}
	if sess.Role() != domain.RoleHost {
		ctl.sendTo(sess, encodeError(env.RequestID, "host role required"))
		return
	}

	var p targetPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.ParticipantID == "" {
		ctl.sendTo(sess, encodeError(env.RequestID, "bad payload"))
		return
	}

	target, ok := ctl.Registry.Get(sess.MeetingID(), p.ParticipantID)
	if !ok {
		log.Debug().Str("module", "signal").Str("target", string(p.ParticipantID)).Msg("lobby target not local, dropped")
		return
	}
	ctl.sendTo(target, encode(KindLobbyResult, "", lobbyResultPayload{Admitted: admitted}))
}
