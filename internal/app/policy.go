package app

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a session whose send buffer filled up
// during a broadcast.
type Policy interface {
	OnBackPressure(mid domain.MeetingID, sess *core.Session) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(mid domain.MeetingID, sess *core.Session) BackpressureAction {
	return KickMember
}
