package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/repo"
)

// Session identifies the acting user. It is resolved once per request from
// the bearer token and passed explicitly to every operation.
type Session struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        domain.Role `json:"role"`
}

// Subject returns the user ID; it lets middleware store a Session without
// importing this package.
func (s Session) Subject() string { return s.UserID }

// IsCustomer reports whether the session belongs to a customer account.
func (s Session) IsCustomer() bool { return s.Role == domain.RoleCustomer }

// IsProvider reports whether the session belongs to a provider account.
func (s Session) IsProvider() bool { return s.Role == domain.RoleProvider }

// Clock supplies the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Publisher receives change events after successful writes. *events.Broker
// implements it.
type Publisher interface {
	Publish(events.Event)
}

func publish(p Publisher, ev events.Event) {
	if p != nil {
		p.Publish(ev)
	}
}

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock
	}
	return c
}

// isNotFound treats repo-level not found sentinels as "not found" in a
// driver-agnostic way.
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

func isDuplicate(err error) bool {
	return errors.Is(err, repo.ErrDuplicate) || errors.Is(err, gorm.ErrDuplicatedKey)
}
