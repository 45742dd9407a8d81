package domain

import "fmt"

// Slot names one of the fixed product varieties of a box.
type Slot string

const (
	SlotAzucar     Slot = "azucar"
	SlotCafe       Slot = "cafe"
	SlotSeasonal   Slot = "seasonal"
	SlotCheesecake Slot = "cheesecake"
	SlotChocolate  Slot = "chocolate"
	SlotOreo       Slot = "oreo"
	SlotZanahoria  Slot = "zanahoria"
)

// Slots lists every slot in display order. Rule evaluation follows this order.
var Slots = []Slot{
	SlotAzucar,
	SlotCafe,
	SlotSeasonal,
	SlotCheesecake,
	SlotChocolate,
	SlotOreo,
	SlotZanahoria,
}

// ParseSlot validates a slot name.
func ParseSlot(raw string) (Slot, bool) {
	for _, slot := range Slots {
		if string(slot) == raw {
			return slot, true
		}
	}
	return "", false
}

// Quantities holds the count per slot. The zero value is an empty box.
type Quantities struct {
	Azucar     int
	Cafe       int
	Seasonal   int
	Cheesecake int
	Chocolate  int
	Oreo       int
	Zanahoria  int
}

// Get returns the count stored for slot.
func (q Quantities) Get(slot Slot) int {
	if p := q.ref(slot); p != nil {
		return *p
	}
	return 0
}

// Set stores n for slot. Unknown slots are ignored.
func (q *Quantities) Set(slot Slot, n int) {
	if p := q.ref(slot); p != nil {
		*p = n
	}
}

func (q *Quantities) ref(slot Slot) *int {
	switch slot {
	case SlotAzucar:
		return &q.Azucar
	case SlotCafe:
		return &q.Cafe
	case SlotSeasonal:
		return &q.Seasonal
	case SlotCheesecake:
		return &q.Cheesecake
	case SlotChocolate:
		return &q.Chocolate
	case SlotOreo:
		return &q.Oreo
	case SlotZanahoria:
		return &q.Zanahoria
	default:
		return nil
	}
}

// Total is the unit count of the box.
func (q Quantities) Total() int {
	total := 0
	for _, slot := range Slots {
		total += q.Get(slot)
	}
	return total
}

// Map returns the quantities keyed by slot name.
func (q Quantities) Map() map[string]int {
	out := make(map[string]int, len(Slots))
	for _, slot := range Slots {
		out[string(slot)] = q.Get(slot)
	}
	return out
}

// MaxSlotUnits caps a single slot so box totals and prices stay far from overflow.
const MaxSlotUnits = 1000

// QuantitiesFromMap builds quantities from a slot-keyed map. Unknown keys and
// counts outside [0, MaxSlotUnits] are rejected.
func QuantitiesFromMap(values map[string]int) (Quantities, error) {
	var q Quantities
	for key, n := range values {
		slot, err := parseSlotCount(key, n)
		if err != nil {
			return Quantities{}, err
		}
		q.Set(slot, n)
	}
	return q, nil
}

func parseSlotCount(key string, n int) (Slot, error) {
	slot, ok := ParseSlot(key)
	if !ok {
		return "", fmt.Errorf("unknown slot %q", key)
	}
	switch {
	case n < 0:
		return "", fmt.Errorf("slot %s must not be negative", key)
	case n > MaxSlotUnits:
		return "", fmt.Errorf("slot %s exceeds %d units", key, MaxSlotUnits)
	}
	return slot, nil
}

// QuantityPatch is a partial update; absent slots keep their previous count.
type QuantityPatch map[Slot]int

// ParseQuantityPatch applies the same per-slot bounds as QuantitiesFromMap.
func ParseQuantityPatch(values map[string]int) (QuantityPatch, error) {
	patch := make(QuantityPatch, len(values))
	for key, n := range values {
		slot, err := parseSlotCount(key, n)
		if err != nil {
			return nil, err
		}
		patch[slot] = n
	}
	return patch, nil
}

// Apply returns q with the patch merged over it.
func (p QuantityPatch) Apply(q Quantities) Quantities {
	out := q
	for slot, n := range p {
		out.Set(slot, n)
	}
	return out
}
