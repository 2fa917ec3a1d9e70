package signal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dkeye/Meet/internal/core"
)

const maxChatTextLen = 2000

// handleChatSend broadcasts an ephemeral chat message to the whole room,
// sender included (the broadcast is the delivery receipt). Nothing is
// persisted here.
func (ctl *Controller) handleChatSend(sess *core.Session, env Envelope) {
	if !ctl.requireInRoom(sess, env) {
		return
	}

	var p chatSendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Text == "" {
		ctl.sendTo(sess, encodeError(env.RequestID, "bad payload"))
		return
	}
	if len(p.Text) > maxChatTextLen {
		ctl.sendTo(sess, encodeError(env.RequestID, "message too long"))
		return
	}

	pid := sess.ParticipantID()
	if !ctl.Limiter.Allow(pid) {
		ctl.sendTo(sess, encodeError(env.RequestID, "rate limited"))
		return
	}

	msg := chatMessagePayload{
		ID:            uuid.NewString(),
		ParticipantID: pid,
		Sender:        sess.Snapshot().DisplayName,
		Text:          p.Text,
		TS:            time.Now().UnixMilli(),
	}
	ctl.fanout(sess.MeetingID(), encode(KindChatMessage, "", msg), "")
}
