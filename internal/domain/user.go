package domain

// UserID is the durable account identity behind a participant. Anonymous
// guests only hold a ParticipantID and leave this empty.
type UserID string
