package rules

import (
	"fmt"

	"github.com/donabox/api/internal/domain"
)

// MinOrderUnits is the smallest box accepted.
const MinOrderUnits = 6

const (
	msgMinOrderSize = "El pedido mínimo es de 6 donas."
	msgSingleUnit   = "No se permiten donas individuales (%s)."
)

// ValidateQuantities returns the first violated composition rule, or nil.
// The minimum size is checked before single units, then slots in catalog order.
func ValidateQuantities(q domain.Quantities) error {
	if violations := QuantityViolations(q); len(violations) > 0 {
		return violations[0]
	}
	return nil
}

// QuantityViolations lists every composition rule the box breaks, in precedence order.
func QuantityViolations(q domain.Quantities) []*Violation {
	var out []*Violation
	if q.Total() < MinOrderUnits {
		out = append(out, &Violation{Rule: RuleMinOrderSize, Message: msgMinOrderSize})
	}
	for _, slot := range domain.Slots {
		if q.Get(slot) == 1 {
			out = append(out, &Violation{Rule: RuleSingleUnit, Slot: slot, Message: fmt.Sprintf(msgSingleUnit, slot)})
		}
	}
	return out
}
