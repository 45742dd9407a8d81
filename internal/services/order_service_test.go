package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donabox/api/internal/domain"
	"github.com/donabox/api/internal/repositories/memory"
	"github.com/donabox/api/internal/rules"
)

func TestCreateIndividualOrder(t *testing.T) {
	env := newTestEnv(t)

	order, err := env.orders.Create(context.Background(), individualOrder("2026-03-11", map[string]int{"azucar": 2, "cafe": 4}))
	require.NoError(t, err)

	assert.Equal(t, "ord-001", order.ID)
	assert.Equal(t, domain.ChannelIndividual, order.Channel)
	assert.Equal(t, 6, order.Units)
	assert.EqualValues(t, 160, order.Price)
	assert.Equal(t, domain.PaymentUnpaid, order.PaymentStatus)
	assert.Equal(t, domain.FulfillmentReceived, order.FulfillmentStatus)
	assert.Equal(t, "ana@example.com", order.Contact.Email)
	assert.Equal(t, "Vegandra", order.PickupLocation)
	assert.Empty(t, order.Outlet)

	stored, err := env.reg.Orders().Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order, stored)
	assert.Equal(t, []string{OrderEventCreated}, env.events.Types())
}

func TestCreatePricing(t *testing.T) {
	cases := []struct {
		name  string
		cmd   SubmitOrderCommand
		units int
		price int64
	}{
		{"partner outlet", retailOrder("Karen Donas", "2026-03-11", map[string]int{"oreo": 10}), 10, 150},
		{"retail outlet", retailOrder("Café Norte", "2026-03-11", map[string]int{"oreo": 4, "cafe": 4}), 8, 160},
		{"individual bundle", individualOrder("2026-03-11", map[string]int{"chocolate": 11}), 11, 310},
		{"individual per unit", individualOrder("2026-03-11", map[string]int{"chocolate": 12}), 12, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			order, err := env.orders.Create(context.Background(), tc.cmd)
			require.NoError(t, err)
			assert.Equal(t, tc.units, order.Units)
			assert.Equal(t, tc.price, order.Price)
		})
	}
}

func TestCreateReportsMinimumSizeFirst(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.Create(context.Background(), individualOrder("2026-03-11", map[string]int{"azucar": 1}))
	require.ErrorIs(t, err, ErrOrderRuleViolation)

	var violation *RuleViolationError
	require.ErrorAs(t, err, &violation)
	require.Len(t, violation.Violations, 2)
	assert.Equal(t, rules.RuleMinOrderSize, violation.Violations[0].Rule)
	assert.Equal(t, rules.RuleSingleUnit, violation.Violations[1].Rule)
	assert.Equal(t, domain.SlotAzucar, violation.Violations[1].Slot)
	assert.Equal(t, 0, env.reg.OrderStore().Len())
}

func TestCreateQuantityRulesBeforeAvailability(t *testing.T) {
	env := newTestEnv(t)

	// Sunday and too small: the size rule wins.
	_, err := env.orders.Create(context.Background(), individualOrder("2026-03-15", map[string]int{"azucar": 2}))
	v, ok := rules.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, rules.RuleMinOrderSize, v.Rule)
}

func TestCreateMalformedInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SubmitOrderCommand)
	}{
		{"unknown channel", func(c *SubmitOrderCommand) { c.Channel = "wholesale" }},
		{"blank name", func(c *SubmitOrderCommand) { c.Name = "  " }},
		{"bad email", func(c *SubmitOrderCommand) { c.Email = "not-an-email" }},
		{"missing phone", func(c *SubmitOrderCommand) { c.Phone = "" }},
		{"short phone", func(c *SubmitOrderCommand) { c.Phone = "12345" }},
		{"unknown pickup", func(c *SubmitOrderCommand) { c.PickupLocation = "Centro" }},
		{"unknown slot", func(c *SubmitOrderCommand) { c.Quantities = map[string]int{"glaseada": 6} }},
		{"negative slot", func(c *SubmitOrderCommand) { c.Quantities = map[string]int{"azucar": -2, "cafe": 8} }},
		{"slot above cap", func(c *SubmitOrderCommand) { c.Quantities = map[string]int{"azucar": domain.MaxSlotUnits + 1} }},
		{"overflowing total", func(c *SubmitOrderCommand) {
			c.Quantities = map[string]int{"azucar": math.MaxInt, "cafe": math.MaxInt, "oreo": 8}
		}},
		{"date format", func(c *SubmitOrderCommand) { c.DeliveryDate = "11/03/2026" }},
		{"impossible date", func(c *SubmitOrderCommand) { c.DeliveryDate = "2026-02-30" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			cmd := individualOrder("2026-03-11", map[string]int{"azucar": 6})
			tc.mutate(&cmd)
			_, err := env.orders.Create(context.Background(), cmd)
			require.ErrorIs(t, err, ErrOrderInvalidInput)
			assert.Equal(t, 0, env.reg.OrderStore().Len())
		})
	}
}

func TestCreateAcceptsSlotAtCap(t *testing.T) {
	env := newTestEnv(t)
	order, err := env.orders.Create(context.Background(), individualOrder("2026-03-11", map[string]int{"azucar": domain.MaxSlotUnits}))
	require.NoError(t, err)
	assert.Equal(t, domain.MaxSlotUnits, order.Units)
	assert.EqualValues(t, domain.MaxSlotUnits*25, order.Price)
}

func TestCreateRetailRequiresOutlet(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orders.Create(context.Background(), retailOrder(" ", "2026-03-11", map[string]int{"azucar": 6}))
	require.ErrorIs(t, err, ErrOrderInvalidInput)
	assert.Contains(t, err.Error(), "puntoVenta")
}

func TestCreateAvailability(t *testing.T) {
	box := map[string]int{"azucar": 6}
	cases := []struct {
		name      string
		caller    Caller
		date      string
		overrides Overrides
		blackout  bool
		wantRule  rules.Rule
	}{
		{name: "sunday rejected for customer", caller: customer, date: "2026-03-15", overrides: Overrides{AllowSunday: true}, wantRule: rules.RuleClosureDay},
		{name: "sunday allowed for staff override", caller: staff, date: "2026-03-15", overrides: Overrides{AllowSunday: true}},
		{name: "sunday without override rejected for staff", caller: staff, date: "2026-03-15", wantRule: rules.RuleClosureDay},
		{name: "same day rejected", caller: anon, date: "2026-03-10", wantRule: rules.RuleLeadTime},
		{name: "past date allowed for staff override", caller: staff, date: "2026-03-01", overrides: Overrides{AllowPastDates: true, AllowSunday: true}},
		{name: "blackout rejects customer", caller: customer, date: "2026-03-12", blackout: true, wantRule: rules.RuleBlackout},
		{name: "blackout rejects staff with overrides", caller: staff, date: "2026-03-12", blackout: true, overrides: Overrides{AllowSunday: true, AllowPastDates: true}, wantRule: rules.RuleBlackout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tc.blackout {
				_, err := env.config.UpdateBlackout(context.Background(), staff, BlackoutCommand{
					Enabled: true,
					Message: "Cerrado por vacaciones",
					Ranges:  []DateRangeInput{{Start: "2026-03-12", End: "2026-03-14"}},
				})
				require.NoError(t, err)
			}
			cmd := individualOrder(tc.date, box)
			cmd.Caller = tc.caller
			cmd.Overrides = tc.overrides

			_, err := env.orders.Create(context.Background(), cmd)
			if tc.wantRule == "" {
				require.NoError(t, err)
				return
			}
			v, ok := rules.AsViolation(err)
			require.True(t, ok, "expected a rule violation, got %v", err)
			assert.Equal(t, tc.wantRule, v.Rule)
			if tc.blackout {
				assert.Equal(t, "Cerrado por vacaciones", err.Error())
			}
		})
	}
}

func TestCreateReadsBlackoutEveryCall(t *testing.T) {
	env := newTestEnv(t)
	box := map[string]int{"cafe": 6}

	env.seed(t, individualOrder("2026-03-12", box))

	_, err := env.config.UpdateBlackout(context.Background(), staff, BlackoutCommand{
		Enabled: true,
		Ranges:  []DateRangeInput{{Start: "2026-03-12", End: "2026-03-12"}},
	})
	require.NoError(t, err)

	_, err = env.orders.Create(context.Background(), individualOrder("2026-03-12", box))
	require.ErrorIs(t, err, ErrOrderRuleViolation)
	assert.Equal(t, DefaultBlackoutMessage, err.Error())
}

func TestCreateEnqueuesConfirmationMail(t *testing.T) {
	env := newTestEnv(t)
	label := "Calabaza"
	_, err := env.config.UpdateSeasonalLabel(context.Background(), staff, label)
	require.NoError(t, err)

	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"azucar": 2, "seasonal": 4}))

	messages := env.reg.Outbox().Messages()
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, ConfirmationTemplate, msg.Template)
	assert.Equal(t, 2026, msg.Data["year"])

	summary := msg.Data["order"].(map[string]any)
	assert.Equal(t, order.ID, summary["id"])
	assert.EqualValues(t, 160, summary["precioTotal"])

	items := msg.Data["items"].([]map[string]any)
	require.Len(t, items, 2)
	assert.Equal(t, 4, items[1]["qty"])
	assert.Equal(t, label, items[1]["label"])
}

func TestCreateSurvivesPublishFailure(t *testing.T) {
	env := newTestEnv(t)
	env.events.err = errors.New("topic not found")

	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"oreo": 6}))
	assert.NotEmpty(t, order.ID)
	assert.True(t, env.logs.Has("order.event.publish.failed"))
	assert.Equal(t, 1, env.reg.OrderStore().Len())
}

func TestQuoteDoesNotPersist(t *testing.T) {
	env := newTestEnv(t)

	quote, err := env.orders.Quote(context.Background(), retailOrder("Karen Donas", "2026-03-11", map[string]int{"oreo": 8}))
	require.NoError(t, err)
	assert.Equal(t, 8, quote.Units)
	assert.EqualValues(t, 120, quote.Price)
	assert.Equal(t, 0, env.reg.OrderStore().Len())
	assert.Empty(t, env.reg.Outbox().Messages())
}

func TestStaffOperationsRequirePrivilege(t *testing.T) {
	env := newTestEnv(t)
	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"azucar": 6}))
	ctx := context.Background()

	for _, caller := range []Caller{anon, customer, {UID: "staff-2", Email: adminEmail}} {
		_, err := env.orders.TogglePaid(ctx, caller, order.ID)
		if caller.Authenticated() {
			assert.ErrorIs(t, err, ErrUnauthorized)
		} else {
			assert.ErrorIs(t, err, ErrUnauthenticated)
		}
		// The gate runs first, so a missing order is indistinguishable.
		_, err = env.orders.ToggleDelivered(ctx, caller, "missing")
		assert.NotErrorIs(t, err, ErrOrderNotFound)
		_, err = env.orders.UpdateQuantities(ctx, caller, order.ID, map[string]int{"azucar": 8})
		assert.Error(t, err)
		assert.Error(t, env.orders.Delete(ctx, caller, order.ID))
		_, err = env.orders.List(ctx, caller, ListOrdersQuery{Mode: "all"})
		assert.Error(t, err)
	}

	stored, err := env.reg.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order, stored)
}

func TestAdminDirectoryGrantsPrivilege(t *testing.T) {
	env := newTestEnv(t)
	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"azucar": 6}))

	_, err := env.orders.TogglePaid(context.Background(), customer, order.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	env.reg.Admins().(*memory.AdminDirectory).Set("ANA@example.com")
	toggle, err := env.orders.TogglePaid(context.Background(), customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, toggle.Current)
}

func TestTogglePaidRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"azucar": 6}))
	ctx := context.Background()

	first, err := env.orders.TogglePaid(ctx, staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentToggle{OrderID: order.ID, Previous: domain.PaymentUnpaid, Current: domain.PaymentPaid}, first)

	second, err := env.orders.TogglePaid(ctx, staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, second.Previous)
	assert.Equal(t, domain.PaymentUnpaid, second.Current)

	_, err = env.orders.TogglePaid(ctx, staff, "missing")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestConcurrentTogglesSerialise(t *testing.T) {
	env := newTestEnv(t)
	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"azucar": 6}))

	const n = 25
	var (
		wg      sync.WaitGroup
		paid    int
		unpaid  int
		results = make(chan PaymentToggle, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			toggle, err := env.orders.TogglePaid(context.Background(), staff, order.ID)
			if err != nil {
				t.Errorf("TogglePaid: %v", err)
				return
			}
			results <- toggle
		}()
	}
	wg.Wait()
	close(results)

	for toggle := range results {
		assert.NotEqual(t, toggle.Previous, toggle.Current)
		if toggle.Previous == domain.PaymentUnpaid {
			unpaid++
		} else {
			paid++
		}
	}
	// Each flip starts from the state the previous one left, so the starts alternate.
	assert.Equal(t, (n+1)/2, unpaid)
	assert.Equal(t, n/2, paid)

	stored, err := env.reg.Orders().Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus, "odd number of flips ends paid")
}

func TestToggleDelivered(t *testing.T) {
	env := newTestEnv(t)
	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"azucar": 6}))

	toggle, err := env.orders.ToggleDelivered(context.Background(), staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentReceived, toggle.Previous)
	assert.Equal(t, domain.FulfillmentDelivered, toggle.Current)

	stored, err := env.reg.Orders().Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnpaid, stored.PaymentStatus)
	assert.Equal(t, domain.FulfillmentDelivered, stored.FulfillmentStatus)
}

func TestUpdateQuantitiesMergesAndReprices(t *testing.T) {
	env := newTestEnv(t)
	order := env.seed(t, retailOrder("Karen Donas", "2026-03-11", map[string]int{"azucar": 4, "cafe": 4}))

	updated, err := env.orders.UpdateQuantities(context.Background(), staff, order.ID, map[string]int{"cafe": 0, "oreo": 6})
	require.NoError(t, err)

	assert.Equal(t, 4, updated.Quantities.Azucar)
	assert.Equal(t, 0, updated.Quantities.Cafe)
	assert.Equal(t, 6, updated.Quantities.Oreo)
	assert.Equal(t, 10, updated.Units)
	assert.EqualValues(t, 150, updated.Price)
	assert.Equal(t, order.Channel, updated.Channel)
	assert.Equal(t, order.Outlet, updated.Outlet)
	assert.Equal(t, order.PickupLocation, updated.PickupLocation)
	assert.Equal(t, order.DeliveryDate, updated.DeliveryDate)
}

func TestUpdateQuantitiesRejectsInvalidBox(t *testing.T) {
	env := newTestEnv(t)
	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"azucar": 6}))
	ctx := context.Background()

	_, err := env.orders.UpdateQuantities(ctx, staff, order.ID, map[string]int{"azucar": 5, "cafe": 1})
	v, ok := rules.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, rules.RuleSingleUnit, v.Rule)
	assert.Equal(t, domain.SlotCafe, v.Slot)

	_, err = env.orders.UpdateQuantities(ctx, staff, order.ID, map[string]int{"azucar": 2})
	require.ErrorIs(t, err, ErrOrderRuleViolation)

	_, err = env.orders.UpdateQuantities(ctx, staff, order.ID, map[string]int{"mystery": 2})
	require.ErrorIs(t, err, ErrOrderInvalidInput)

	_, err = env.orders.UpdateQuantities(ctx, staff, order.ID, map[string]int{"azucar": math.MaxInt, "cafe": math.MaxInt, "oreo": 8})
	require.ErrorIs(t, err, ErrOrderInvalidInput)
	assert.Contains(t, err.Error(), "Cantidad inválida")

	stored, err := env.reg.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order, stored)
}

func TestDeleteOrder(t *testing.T) {
	env := newTestEnv(t)
	order := env.seed(t, individualOrder("2026-03-11", map[string]int{"azucar": 6}))
	ctx := context.Background()

	require.NoError(t, env.orders.Delete(ctx, staff, order.ID))
	require.ErrorIs(t, env.orders.Delete(ctx, staff, order.ID), ErrOrderNotFound)
	assert.Contains(t, env.events.Types(), OrderEventDeleted)
}

func TestListModes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	box := map[string]int{"azucar": 6}

	today := individualOrder("2026-03-10", box)
	today.Caller = staff
	today.Overrides = Overrides{AllowPastDates: true}
	env.seed(t, today)
	tomorrow := env.seed(t, retailOrder("Karen Donas", "2026-03-11", box))
	env.seed(t, retailOrder("Café Norte", "2026-03-11", box))
	april := env.seed(t, retailOrder("Karen Donas", "2026-04-02", box))

	cases := []struct {
		query ListOrdersQuery
		want  []string
	}{
		{ListOrdersQuery{Mode: "Hoy"}, []string{"ord-001"}},
		{ListOrdersQuery{Mode: "tomorrow"}, []string{"ord-002", "ord-003"}},
		{ListOrdersQuery{Mode: "Mañana", Outlet: "Karen Donas"}, []string{tomorrow.ID}},
		{ListOrdersQuery{Mode: "Mañana", Outlet: "  Karen   Donas "}, []string{tomorrow.ID}},
		{ListOrdersQuery{Mode: "all"}, []string{"ord-004", "ord-002", "ord-003", "ord-001"}},
		{ListOrdersQuery{Mode: "Todos", Month: "2026-04"}, []string{april.ID}},
		{ListOrdersQuery{Mode: "all", Outlet: "ALL", Month: "2026-03"}, []string{"ord-002", "ord-003", "ord-001"}},
	}
	for _, tc := range cases {
		orders, err := env.orders.List(ctx, staff, tc.query)
		require.NoError(t, err)
		ids := make([]string, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		assert.Equal(t, tc.want, ids, "query %+v", tc.query)
	}

	_, err := env.orders.List(ctx, staff, ListOrdersQuery{Mode: "all", Month: "marzo"})
	require.ErrorIs(t, err, ErrOrderInvalidInput)
	_, err = env.orders.List(ctx, staff, ListOrdersQuery{Mode: "weekly"})
	require.ErrorIs(t, err, ErrOrderInvalidInput)
}
