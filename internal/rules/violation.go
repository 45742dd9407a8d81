// Package rules holds the order rules shared by the quote pre-check and the
// acceptance path: pricing, box composition and delivery-date availability.
package rules

import (
	"errors"

	"cloud.google.com/go/civil"

	"github.com/donabox/api/internal/domain"
)

// Rule identifies which business rule rejected an order.
type Rule string

const (
	RuleMinOrderSize Rule = "min_order_size"
	RuleSingleUnit   Rule = "single_unit"
	RuleClosureDay   Rule = "closure_day"
	RuleBlackout     Rule = "blackout"
	RuleLeadTime     Rule = "lead_time"
)

// Violation is a user-displayable rule rejection.
type Violation struct {
	Rule    Rule
	Slot    domain.Slot
	Date    civil.Date
	Message string
}

func (v *Violation) Error() string {
	if v == nil {
		return ""
	}
	return v.Message
}

// AsViolation unwraps err into a Violation when it carries one.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) && v != nil {
		return v, true
	}
	return nil, false
}
