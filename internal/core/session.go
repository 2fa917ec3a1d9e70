package core

import (
	"errors"
	"sync"

	"github.com/dkeye/Meet/internal/domain"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrAlreadyInRoom        = errors.New("already in a room")
	ErrNotInRoom            = errors.New("not in a room")
	ErrSessionClosed        = errors.New("session closed")
)

// Session is the per-connection state machine:
// Unauthenticated -> Authenticated -> InRoom -> Closed, with
// InRoom -> Authenticated on leave and any state -> Closed on transport
// close. Most fields belong to the connection's own read loop, but
// moderation and the relay subscriber mutate media/hand state from other
// goroutines, so everything mutable sits behind one mutex.
type Session struct {
	id   SessionID
	conn SignalConnection

	mu          sync.Mutex
	state       State
	userID      domain.UserID
	participant domain.ParticipantID
	meetingID   domain.MeetingID
	role        domain.Role
	displayName string
	media       domain.MediaState
	handRaised  bool

	cleanupOnce sync.Once
}

func NewSession(id SessionID, conn SignalConnection) *Session {
	return &Session{id: id, conn: conn, state: StateUnauthenticated}
}

func (s *Session) ID() SessionID          { return s.id }
func (s *Session) Conn() SignalConnection { return s.conn }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) ParticipantID() domain.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

func (s *Session) MeetingID() domain.MeetingID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetingID
}

func (s *Session) Role() domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Authenticate moves Unauthenticated -> Authenticated. A failed token check
// never reaches this point, so the only error cases are re-auth and a
// closed session.
func (s *Session) Authenticate(userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateAuthenticated, StateInRoom:
		return ErrAlreadyAuthenticated
	}
	s.state = StateAuthenticated
	s.userID = userID
	return nil
}

// EnterRoom moves Authenticated -> InRoom and populates the room-scoped
// fields from the resolved participant plus the client's device flags.
func (s *Session) EnterRoom(p *domain.Participant, media domain.MediaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateUnauthenticated:
		return ErrNotAuthenticated
	case StateInRoom:
		return ErrAlreadyInRoom
	}
	s.state = StateInRoom
	s.participant = p.ID
	s.meetingID = p.Meeting.ID
	s.role = p.Role
	s.displayName = p.DisplayName
	s.media = media
	s.handRaised = false
	return nil
}

// LeaveRoom moves InRoom -> Authenticated and clears room-scoped fields,
// returning them so the caller can deregister and broadcast. The second
// return is false when the session was not in a room (leave is idempotent
// at this level).
func (s *Session) LeaveRoom() (domain.ParticipantID, domain.MeetingID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInRoom {
		return "", "", false
	}
	pid, mid := s.participant, s.meetingID
	s.state = StateAuthenticated
	s.participant = ""
	s.meetingID = ""
	s.role = ""
	s.displayName = ""
	s.media = domain.MediaState{}
	s.handRaised = false
	return pid, mid, true
}

// Close finalizes the session. cleanup runs exactly once even when the
// transport close races an in-flight handler; it receives the room fields
// held at close time so the caller can run the same leave path.
func (s *Session) Close(cleanup func(pid domain.ParticipantID, mid domain.MeetingID, wasInRoom bool)) {
	s.cleanupOnce.Do(func() {
		pid, mid, wasInRoom := s.LeaveRoom()
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		if cleanup != nil {
			cleanup(pid, mid, wasInRoom)
		}
	})
}

// ApplyMediaPatch merges a partial device state and returns the resulting
// full state.
func (s *Session) ApplyMediaPatch(patch domain.MediaState) domain.MediaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = s.media.Merge(patch)
	return s.media
}

func (s *Session) MediaState() domain.MediaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

// ForceMicOff is the moderation path: it runs on the moderator's goroutine,
// not the target's.
func (s *Session) ForceMicOff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media.Mic = domain.ToggleOff
}

func (s *Session) SetHandRaised(raised bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handRaised = raised
}

func (s *Session) HandRaised() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handRaised
}

// Snapshot is the peer view sent in room.joined and participant.joined.
func (s *Session) Snapshot() PeerDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PeerDTO{
		ParticipantID: s.participant,
		UserID:        s.userID,
		Role:          s.role,
		DisplayName:   s.displayName,
		Media:         s.media,
		HandRaised:    s.handRaised,
	}
}
