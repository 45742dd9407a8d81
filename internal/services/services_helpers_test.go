package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/donabox/api/internal/repositories/memory"
)

const adminEmail = "owner@donabox.mx"

// Tuesday 2026-03-10, midday in the business zone.
var (
	businessZone = time.FixedZone("CST", -6*60*60)
	fixedNow     = time.Date(2026, time.March, 10, 12, 0, 0, 0, businessZone)
)

var (
	staff    = Caller{UID: "staff-1", Email: "Owner@DonaBox.mx", EmailVerified: true}
	customer = Caller{UID: "cust-1", Email: "ana@example.com", EmailVerified: true}
	anon     = Caller{}
)

type testEnv struct {
	reg     *memory.Registry
	gate    AuthorizationGate
	config  ConfigService
	orders  OrderService
	events  *recordingPublisher
	logs    *recordingLogger
	counter atomic.Int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		reg:    memory.NewRegistry(),
		events: &recordingPublisher{},
		logs:   &recordingLogger{},
	}
	env.gate = NewAllowlistGate(AllowlistGateDeps{
		Static:               []string{adminEmail},
		Directory:            env.reg.Admins(),
		RequireVerifiedEmail: true,
	})

	clock := func() time.Time { return fixedNow }
	cfg, err := NewConfigService(ConfigServiceDeps{
		Config: env.reg.Config(),
		Gate:   env.gate,
		Clock:  clock,
		Logger: env.logs.Log,
	})
	require.NoError(t, err)
	env.config = cfg

	orders, err := NewOrderService(OrderServiceDeps{
		Orders:   env.reg.Orders(),
		Config:   cfg,
		Gate:     env.gate,
		Mail:     env.reg.Mail(),
		Events:   env.events,
		Location: businessZone,
		Clock:    clock,
		IDGen:    func() string { return fmt.Sprintf("ord-%03d", env.counter.Add(1)) },
		Logger:   env.logs.Log,
	})
	require.NoError(t, err)
	env.orders = orders
	return env
}

func individualOrder(date string, quantities map[string]int) SubmitOrderCommand {
	return SubmitOrderCommand{
		Caller:         anon,
		Channel:        "individual",
		Name:           "Ana López",
		Email:          "Ana@Example.com",
		Phone:          "+52 55 1234 5678",
		PickupLocation: "Vegandra",
		DeliveryDate:   date,
		Quantities:     quantities,
	}
}

func retailOrder(outlet, date string, quantities map[string]int) SubmitOrderCommand {
	return SubmitOrderCommand{
		Caller:       anon,
		Channel:      "retail",
		Name:         "Tienda Centro",
		Email:        "tienda@example.com",
		Outlet:       outlet,
		DeliveryDate: date,
		Quantities:   quantities,
	}
}

func (e *testEnv) seed(t *testing.T, cmd SubmitOrderCommand) Order {
	t.Helper()
	order, err := e.orders.Create(context.Background(), cmd)
	require.NoError(t, err)
	return order
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) Log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) Has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}
