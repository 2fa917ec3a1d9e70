package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var ErrDuplicateParticipant = errors.New("participant already registered")

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped []*core.Session
}

// RoomRegistry maps a meeting to its locally-connected sessions, keyed by
// participant id. Rooms exist only while at least one local session is in
// them; meetings served entirely by other nodes have no entry here.
//
// The registry is the one structure mutated by many connection goroutines
// plus the relay subscriber, so every method takes the lock. Locks never
// span I/O: Broadcast only hands frames to buffered send channels.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.MeetingID]map[domain.ParticipantID]*core.Session
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[domain.MeetingID]map[domain.ParticipantID]*core.Session)}
}

// Join registers a session under its participant id, lazily creating the
// room. A second join for the same participant id fails; the caller decides
// whether to evict the old session first.
func (r *RoomRegistry) Join(mid domain.MeetingID, pid domain.ParticipantID, sess *core.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[mid]
	if room == nil {
		room = make(map[domain.ParticipantID]*core.Session)
		r.rooms[mid] = room
	}
	if _, ok := room[pid]; ok {
		return ErrDuplicateParticipant
	}
	room[pid] = sess
	log.Info().Str("module", "app.registry").Str("meeting", string(mid)).Str("participant", string(pid)).Int("size", len(room)).Msg("participant joined room")
	return nil
}

// Leave removes the entry and deletes the room once empty. No-op if absent.
func (r *RoomRegistry) Leave(mid domain.MeetingID, pid domain.ParticipantID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[mid]
	if !ok {
		return
	}
	if _, ok := room[pid]; !ok {
		return
	}
	delete(room, pid)
	if len(room) == 0 {
		delete(r.rooms, mid)
	}
	log.Info().Str("module", "app.registry").Str("meeting", string(mid)).Str("participant", string(pid)).Int("size", len(room)).Msg("participant left room")
}

// Get is the point-to-point lookup used by signaling relay and moderation.
func (r *RoomRegistry) Get(mid domain.MeetingID, pid domain.ParticipantID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.rooms[mid][pid]
	return sess, ok
}

// ListPeers returns a copied snapshot, safe to iterate while the room
// mutates underneath.
func (r *RoomRegistry) ListPeers(mid domain.MeetingID) []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[mid]
	out := make([]*core.Session, 0, len(room))
	for _, sess := range room {
		out = append(out, sess)
	}
	return out
}

// Broadcast sends one pre-serialized frame to every local session in the
// room except the excluded participant. A failed send is logged and
// skipped; sessions whose buffer was full come back in Dropped for the
// backpressure policy.
func (r *RoomRegistry) Broadcast(mid domain.MeetingID, frame core.Frame, exclude domain.ParticipantID) PublishResult {
	snapshot := r.snapshotExcept(mid, exclude)
	res := PublishResult{}
	for _, sess := range snapshot {
		if err := sess.Conn().TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("meeting", string(mid)).Str("participant", string(sess.ParticipantID())).Msg("broadcast send failed")
			res.Dropped = append(res.Dropped, sess)
			continue
		}
		res.SentTo++
	}
	return res
}

func (r *RoomRegistry) snapshotExcept(mid domain.MeetingID, exclude domain.ParticipantID) []*core.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[mid]
	out := make([]*core.Session, 0, len(room))
	for pid, sess := range room {
		if exclude != "" && pid == exclude {
			continue
		}
		out = append(out, sess)
	}
	return out
}

// RoomSize reports the local session count for a meeting (0 if absent).
func (r *RoomRegistry) RoomSize(mid domain.MeetingID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[mid])
}

type RoomInfo struct {
	MeetingID   domain.MeetingID `json:"meetingId"`
	MemberCount int              `json:"memberCount"`
}

// List is the read-only view served by the rooms endpoint.
func (r *RoomRegistry) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for mid, room := range r.rooms {
		out = append(out, RoomInfo{MeetingID: mid, MemberCount: len(room)})
	}
	return out
}
