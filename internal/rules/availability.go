package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/donabox/api/internal/domain"
)

// ClosureDay is the weekday on which no orders are delivered.
const ClosureDay = time.Sunday

const (
	msgClosureDay      = "No recibimos pedidos en domingo."
	msgLeadTime        = "El pedido debe ser solicitado con al menos un día de anticipación."
	msgBlackoutDefault = "⚠️ No estamos recibiendo pedidos en esas fechas."
)

// ErrMalformedDate is returned for dates that are not well-formed YYYY-MM-DD calendar dates.
var ErrMalformedDate = errors.New("date must be YYYY-MM-DD")

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDate parses a strict YYYY-MM-DD calendar date.
func ParseDate(raw string) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if !isoDate.MatchString(raw) {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
	d, err := civil.ParseDate(raw)
	if err != nil || !d.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
	return d, nil
}

// OperationalDay returns the calendar date of now in the business location.
func OperationalDay(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

// AvailabilityInput carries everything the availability check needs.
// Blackout must be the configuration read for this call.
type AvailabilityInput struct {
	Date             civil.Date
	Today            civil.Date
	Blackout         domain.BlackoutConfig
	BypassClosureDay bool
	BypassLeadTime   bool
}

// CheckAvailability applies, in order: closure day, blackout ranges, lead time.
// Blackout ranges cannot be bypassed.
func CheckAvailability(in AvailabilityInput) error {
	if !in.Date.IsValid() {
		return ErrMalformedDate
	}
	if !in.BypassClosureDay && weekday(in.Date) == ClosureDay {
		return &Violation{Rule: RuleClosureDay, Date: in.Date, Message: msgClosureDay}
	}
	if in.Blackout.Covers(in.Date) {
		msg := strings.TrimSpace(in.Blackout.Message)
		if msg == "" {
			msg = msgBlackoutDefault
		}
		return &Violation{Rule: RuleBlackout, Date: in.Date, Message: msg}
	}
	if !in.BypassLeadTime && !in.Date.After(in.Today) {
		return &Violation{Rule: RuleLeadTime, Date: in.Date, Message: msgLeadTime}
	}
	return nil
}

func weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}
