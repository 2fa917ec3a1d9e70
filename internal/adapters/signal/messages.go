package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type Kind string

// Inbound kinds. The router matches over this closed set; anything else is
// an unknown-kind error.
const (
	KindAuthenticate     Kind = "auth.authenticate"
	KindRoomJoin         Kind = "room.join"
	KindRoomLeave        Kind = "room.leave"
	KindRTCSignal        Kind = "rtc.signal"
	KindMediaUpdate      Kind = "media.update"
	KindChatSend         Kind = "chat.send"
	KindReactionSend     Kind = "reaction.send"
	KindHandRaise        Kind = "hand.raise"
	KindHandLower        Kind = "hand.lower"
	KindModerationMute   Kind = "moderation.mute"
	KindModerationRemove Kind = "moderation.remove"
	KindLobbyAdmit       Kind = "lobby.admit"
	KindLobbyReject      Kind = "lobby.reject"
)

// Outbound kinds.
const (
	KindAuthOK            Kind = "auth.ok"
	KindAuthError         Kind = "auth.error"
	KindRoomJoined        Kind = "room.joined"
	KindRoomLeft          Kind = "room.left"
	KindRoomKicked        Kind = "room.kicked"
	KindParticipantJoined Kind = "participant.joined"
	KindParticipantLeft   Kind = "participant.left"
	KindMediaChanged      Kind = "media.changed"
	KindChatMessage       Kind = "chat.message"
	KindReactionAdded     Kind = "reaction.added"
	KindHandChanged       Kind = "hand.changed"
	KindModerationMuted   Kind = "moderation.muted"
	KindLobbyResult       Kind = "lobby.result"
	KindError             Kind = "error"
)

// Envelope is the single wire frame in both directions. RequestID is echoed
// verbatim on direct responses, never on broadcasts.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Inbound payloads.

type authenticatePayload struct {
	AccessToken string `json:"accessToken"`
}

type devicePayload struct {
	Mic bool `json:"mic"`
	Cam bool `json:"cam"`
}

type joinPayload struct {
	RoomToken string        `json:"roomToken"`
	Device    devicePayload `json:"device"`
}

// signalPayload carries a WebRTC handshake step. SDP and Candidate are
// relayed verbatim; only From/To are touched.
type signalPayload struct {
	To        domain.ParticipantID     `json:"to,omitempty"`
	From      domain.ParticipantID     `json:"from,omitempty"`
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

type chatSendPayload struct {
	Text string `json:"text"`
}

type reactionPayload struct {
	Type string `json:"type"`
}

type targetPayload struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
}

// Outbound payloads.

type authOKPayload struct {
	UserID domain.UserID `json:"userId"`
}

type roomJoinedPayload struct {
	Meeting         domain.Meeting `json:"meeting"`
	SelfParticipant core.PeerDTO   `json:"selfParticipant"`
	Peers           []core.PeerDTO `json:"peers"`
}

type participantLeftPayload struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
}

type mediaChangedPayload struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	Patch         domain.MediaState    `json:"patch"`
}

type chatMessagePayload struct {
	ID            string               `json:"id"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Sender        string               `json:"sender"`
	Text          string               `json:"text"`
	TS            int64                `json:"ts"`
}

type reactionAddedPayload struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	Type          string               `json:"type"`
	TS            int64                `json:"ts"`
}

type handChangedPayload struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	Raised        bool                 `json:"raised"`
}

type moderationMutedPayload struct {
	By domain.ParticipantID `json:"by"`
}

type roomKickedPayload struct {
	By     domain.ParticipantID `json:"by"`
	Reason string               `json:"reason,omitempty"`
}

type lobbyResultPayload struct {
	Admitted bool `json:"admitted"`
}

// encode builds a serialized outbound envelope. Payload marshal failures
// cannot happen for our own payload types, so they degrade to an error frame.
func encode(kind Kind, requestID string, payload any) core.Frame {
	env := Envelope{Kind: kind, RequestID: requestID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return encodeError(requestID, "internal error")
		}
		env.Payload = data
	}
	frame, _ := json.Marshal(env)
	return frame
}

func encodeError(requestID, msg string) core.Frame {
	frame, _ := json.Marshal(Envelope{Kind: KindError, RequestID: requestID, Error: msg})
	return frame
}

func encodeAuthError(requestID, msg string) core.Frame {
	frame, _ := json.Marshal(Envelope{Kind: KindAuthError, RequestID: requestID, Error: msg})
	return frame
}

func validSignalType(t string) bool {
	switch t {
	case "offer", "answer", "ice":
		return true
	}
	return false
}
