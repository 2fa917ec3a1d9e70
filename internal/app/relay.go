package app

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// RelayCommand asks whichever node holds the target session to apply a
// moderation action. Only that node acts, so commands cannot echo.
type RelayCommand struct {
	Action string               `json:"action"` // "mute" or "remove"
	Target domain.ParticipantID `json:"target"`
	By     domain.ParticipantID `json:"by"`
	Reason string               `json:"reason,omitempty"`
}

// RelayMessage is the per-meeting channel payload: either a fan-out event
// (same JSON as a local broadcast frame) or a moderation command.
type RelayMessage struct {
	Origin  string          `json:"origin"`
	Event   json.RawMessage `json:"event,omitempty"`
	Command *RelayCommand   `json:"command,omitempty"`
}

// Relay propagates room events between backend nodes. Best-effort by
// design: these are ephemeral presence/signaling events, so a dropped one
// self-heals on the next state query and publish failures never reach the
// caller's control flow.
type Relay interface {
	PublishEvent(mid domain.MeetingID, event core.Frame)
	PublishCommand(mid domain.MeetingID, cmd RelayCommand)
	// Subscribe invokes fn once per message from other nodes on the
	// meeting's channel. The returned func unsubscribes.
	Subscribe(mid domain.MeetingID, fn func(RelayMessage)) (func(), error)
	Close()
}

func relaySubject(mid domain.MeetingID) string {
	return "meeting." + string(mid)
}

// decodeRelayMessage drops malformed payloads and our own publications.
func decodeRelayMessage(selfOrigin string, data []byte) (RelayMessage, bool) {
	var msg RelayMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("malformed relay payload dropped")
		return RelayMessage{}, false
	}
	if msg.Origin == selfOrigin {
		return RelayMessage{}, false
	}
	if msg.Event == nil && msg.Command == nil {
		log.Warn().Str("module", "app.relay").Str("origin", msg.Origin).Msg("empty relay message dropped")
		return RelayMessage{}, false
	}
	return msg, true
}

// NATSRelay bridges per-meeting channels over a NATS broker. NATS preserves
// order for one publisher on one subject, which is all the handlers rely on.
type NATSRelay struct {
	nc     *nats.Conn
	origin string
}

func NewNATSRelay(url string) (*NATSRelay, error) {
	origin := uuid.NewString()
	nc, err := nats.Connect(url,
		nats.Name("meet-signal-"+origin),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.relay").Str("url", nc.ConnectedUrl()).Str("origin", origin).Msg("connected to relay broker")
	return &NATSRelay{nc: nc, origin: origin}, nil
}

func (r *NATSRelay) Origin() string { return r.origin }

func (r *NATSRelay) PublishEvent(mid domain.MeetingID, event core.Frame) {
	r.publish(mid, RelayMessage{Origin: r.origin, Event: json.RawMessage(event)})
}

func (r *NATSRelay) PublishCommand(mid domain.MeetingID, cmd RelayCommand) {
	r.publish(mid, RelayMessage{Origin: r.origin, Command: &cmd})
}

func (r *NATSRelay) publish(mid domain.MeetingID, msg RelayMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("meeting", string(mid)).Msg("relay marshal failed")
		return
	}
	if err := r.nc.Publish(relaySubject(mid), data); err != nil {
		// Local delivery already happened; cross-node degrades silently.
		log.Warn().Err(err).Str("module", "app.relay").Str("meeting", string(mid)).Msg("relay publish failed")
	}
}

func (r *NATSRelay) Subscribe(mid domain.MeetingID, fn func(RelayMessage)) (func(), error) {
	sub, err := r.nc.Subscribe(relaySubject(mid), func(m *nats.Msg) {
		msg, ok := decodeRelayMessage(r.origin, m.Data)
		if !ok {
			return
		}
		fn(msg)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.relay").Str("meeting", string(mid)).Msg("subscribed to meeting channel")
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("module", "app.relay").Str("meeting", string(mid)).Msg("unsubscribe failed")
		}
	}, nil
}

func (r *NATSRelay) Close() {
	if err := r.nc.Drain(); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("relay drain failed")
	}
}

// NoopRelay serves single-node deployments and tests.
type NoopRelay struct{}

func (NoopRelay) PublishEvent(domain.MeetingID, core.Frame)     {}
func (NoopRelay) PublishCommand(domain.MeetingID, RelayCommand) {}
func (NoopRelay) Subscribe(domain.MeetingID, func(RelayMessage)) (func(), error) {
	return func() {}, nil
}
func (NoopRelay) Close() {}
