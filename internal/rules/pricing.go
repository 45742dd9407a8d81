package rules

import (
	"strings"

	"github.com/donabox/api/internal/domain"
)

const (
	// PartnerOutlet receives the partner rate on every order, whatever the channel.
	PartnerOutlet = "Karen Donas"

	PartnerUnitPrice    int64 = 15
	RetailUnitPrice     int64 = 20
	IndividualUnitPrice int64 = 25
)

// individualBundles maps box sizes to flat bundle prices for the individual channel.
var individualBundles = map[int]int64{
	6:  160,
	7:  190,
	8:  220,
	9:  250,
	10: 280,
	11: 310,
}

// Quote is the authoritative unit count and price of a box.
type Quote struct {
	Units int
	Price int64
}

// Price computes the unit count and price for a box. The partner outlet wins
// over the channel, retail uses the wholesale rate, and individual boxes use
// the bundle table with a per-unit fallback.
func Price(channel domain.Channel, outlet string, q domain.Quantities) Quote {
	units := q.Total()
	n := int64(units)

	switch {
	case strings.TrimSpace(outlet) == PartnerOutlet:
		return Quote{Units: units, Price: n * PartnerUnitPrice}
	case channel == domain.ChannelRetail:
		return Quote{Units: units, Price: n * RetailUnitPrice}
	}

	if bundle, ok := individualBundles[units]; ok {
		return Quote{Units: units, Price: bundle}
	}
	return Quote{Units: units, Price: n * IndividualUnitPrice}
}

// PriceOrder reprices an order from its own channel, outlet and quantities.
func PriceOrder(order domain.Order) Quote {
	return Price(order.Channel, order.Outlet, order.Quantities)
}
