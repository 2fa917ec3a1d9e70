package signal

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Meet/internal/core"
)

const maxReactionTypeLen = 32

func (ctl *Controller) handleHand(sess *core.Session, env Envelope, raised bool) {
	if !ctl.requireInRoom(sess, env) {
		return
	}
	sess.SetHandRaised(raised)
	pid := sess.ParticipantID()
	ctl.fanout(sess.MeetingID(), encode(KindHandChanged, "", handChangedPayload{ParticipantID: pid, Raised: raised}), "")
}

func (ctl *Controller) handleReactionSend(sess *core.Session, env Envelope) {
	if !ctl.requireInRoom(sess, env) {
		return
	}

	var p reactionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Type == "" || len(p.Type) > maxReactionTypeLen {
		ctl.sendTo(sess, encodeError(env.RequestID, "bad payload"))
		return
	}

	pid := sess.ParticipantID()
	if !ctl.Limiter.Allow(pid) {
		ctl.sendTo(sess, encodeError(env.RequestID, "rate limited"))
		return
	}

	ctl.fanout(sess.MeetingID(), encode(KindReactionAdded, "", reactionAddedPayload{
		ParticipantID: pid,
		Type:          p.Type,
		TS:            time.Now().UnixMilli(),
	}), "")
}
