package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

// Frame is a serialized outbound envelope.
type Frame []byte

// SessionID tags one live connection. Assigned by the gateway, never reused
// for addressing inside a room (that is the ParticipantID's job).
type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PeerDTO is a read-only view of an in-room session (no transport fields).
type PeerDTO struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	UserID        domain.UserID        `json:"userId,omitempty"`
	Role          domain.Role          `json:"role"`
	DisplayName   string               `json:"displayName"`
	Media         domain.MediaState    `json:"media"`
	HandRaised    bool                 `json:"handRaised"`
}

// AccessTokenVerifier checks a client's identity token.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (domain.UserID, error)
}

// RoomTokenVerifier checks a room credential and yields the participant
// identity it was issued for.
type RoomTokenVerifier interface {
	VerifyRoomToken(token string) (domain.ParticipantID, error)
}

// ParticipantDirectory is the external participant store.
// RecordParticipantLeft is best-effort; callers log failures and move on.
type ParticipantDirectory interface {
	ResolveParticipant(ctx context.Context, id domain.ParticipantID) (*domain.Participant, error)
	RecordParticipantLeft(ctx context.Context, id domain.ParticipantID) error
}
