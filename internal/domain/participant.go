// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxDisplayNameLen = 64

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type ParticipantID string

type Role string

const (
	RoleHost   Role = "host"
	RoleCohost Role = "cohost"
	RoleGuest  Role = "guest"
)

// CanModerate reports whether the role may mute or remove other participants.
func (r Role) CanModerate() bool {
	return r == RoleHost || r == RoleCohost
}

type ToggleState string

const (
	ToggleOn  ToggleState = "on"
	ToggleOff ToggleState = "off"
)

// MediaState is a participant's device state. Zero fields in a patch mean
// "unchanged"; Merge applies only the set ones.
type MediaState struct {
	Mic    ToggleState `json:"mic,omitempty"`
	Cam    ToggleState `json:"cam,omitempty"`
	Screen ToggleState `json:"screen,omitempty"`
}

func (m MediaState) Merge(patch MediaState) MediaState {
	if patch.Mic != "" {
		m.Mic = patch.Mic
	}
	if patch.Cam != "" {
		m.Cam = patch.Cam
	}
	if patch.Screen != "" {
		m.Screen = patch.Screen
	}
	return m
}

// Participant is the per-meeting identity resolved from the external store
// at join time. Distinct from UserID so one user can hold several concurrent
// participant identities (two browser tabs).
type Participant struct {
	ID          ParticipantID `json:"id"`
	UserID      UserID        `json:"userId,omitempty"`
	Role        Role          `json:"role"`
	DisplayName string        `json:"displayName"`
	Meeting     Meeting       `json:"meeting"`
}

func ValidateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
