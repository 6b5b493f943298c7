package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле checkout-сессии.
type TimelineEvent struct {
	SessionID string
	Type      string
	Reason    string
	Occurred  time.Time
}
