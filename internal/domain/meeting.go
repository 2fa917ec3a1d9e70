package domain

type MeetingID string

// Meeting is the durable identity of a conference. Participant bookkeeping
// lives in the external store; only the id and a display code travel here.
type Meeting struct {
	ID   MeetingID `json:"id"`
	Code string    `json:"code,omitempty"`
}
