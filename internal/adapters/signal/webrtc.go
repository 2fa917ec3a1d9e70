package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
)

// handleRTCSignal forwards one handshake step point-to-point. The SDP/ICE
// content is never inspected; only the address fields change: `to` is
// consumed, `from` is stamped with the sender. A target absent locally is
// silently dropped — it may be on another node or already gone, and
// signaling is deliberately not relayed cross-node.
func (ctl *Controller) handleRTCSignal(sess *core.Session, env Envelope) {
	if !ctl.requireInRoom(sess, env) {
		return
	}

	var p signalPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.To == "" || !validSignalType(p.Type) {
		ctl.sendTo(sess, encodeError(env.RequestID, "bad payload"))
		return
	}

	mid := sess.MeetingID()
	target, ok := ctl.Registry.Get(mid, p.To)
	if !ok {
		log.Debug().Str("module", "signal").Str("to", string(p.To)).Str("meeting", string(mid)).Msg("signal target not local, dropped")
		return
	}

	out := signalPayload{
		From:      sess.ParticipantID(),
		Type:      p.Type,
		SDP:       p.SDP,
		Candidate: p.Candidate,
	}
	if err := target.Conn().TrySend(encode(KindRTCSignal, "", out)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("to", string(p.To)).Msg("signal forward failed")
	}
}
