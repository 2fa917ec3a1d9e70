package signal

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// handleMediaUpdate merges a partial device state into the session and
// announces the delta (not the full state). The sender is excluded: it
// already knows what it changed.
func (ctl *Controller) handleMediaUpdate(sess *core.Session, env Envelope) {
	if !ctl.requireInRoom(sess, env) {
		return
	}

	var patch domain.MediaState
	if err := json.Unmarshal(env.Payload, &patch); err != nil || !validPatch(patch) {
		ctl.sendTo(sess, encodeError(env.RequestID, "bad payload"))
		return
	}
	if patch == (domain.MediaState{}) {
		ctl.sendTo(sess, encodeError(env.RequestID, "empty media patch"))
		return
	}

	sess.ApplyMediaPatch(patch)
	pid := sess.ParticipantID()
	ctl.fanout(sess.MeetingID(), encode(KindMediaChanged, "", mediaChangedPayload{ParticipantID: pid, Patch: patch}), pid)
}

func validPatch(p domain.MediaState) bool {
	return validToggle(p.Mic) && validToggle(p.Cam) && validToggle(p.Screen)
}

func validToggle(t domain.ToggleState) bool {
	return t == "" || t == domain.ToggleOn || t == domain.ToggleOff
}
