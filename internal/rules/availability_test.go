package rules

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donabox/api/internal/domain"
)

// 2025-06-11 is a Wednesday; 2025-06-15 is a Sunday.
var (
	wednesday = civil.Date{Year: 2025, Month: time.June, Day: 11}
	thursday  = civil.Date{Year: 2025, Month: time.June, Day: 12}
	sunday    = civil.Date{Year: 2025, Month: time.June, Day: 15}
	monday    = civil.Date{Year: 2025, Month: time.June, Day: 16}
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2025-06-12")
	require.NoError(t, err)
	assert.Equal(t, thursday, d)

	for _, raw := range []string{"", "2025-6-12", "12/06/2025", "2025-02-30", "2025-13-01", "2025-06-12T00:00:00Z"} {
		_, err := ParseDate(raw)
		assert.ErrorIs(t, err, ErrMalformedDate, raw)
	}
}

func TestCheckAvailability(t *testing.T) {
	t.Parallel()

	blackout := domain.BlackoutConfig{
		Enabled: true,
		Message: "Cerrado por vacaciones",
		Ranges:  []domain.DateRange{{Start: monday, End: monday.AddDays(2)}},
	}

	cases := []struct {
		name     string
		in       AvailabilityInput
		wantRule Rule
		wantMsg  string
	}{
		{
			name: "tomorrow accepted",
			in:   AvailabilityInput{Date: thursday, Today: wednesday},
		},
		{
			name:     "same day rejected",
			in:       AvailabilityInput{Date: wednesday, Today: wednesday},
			wantRule: RuleLeadTime,
		},
		{
			name:     "past rejected",
			in:       AvailabilityInput{Date: wednesday.AddDays(-3), Today: wednesday},
			wantRule: RuleLeadTime,
		},
		{
			name: "lead time bypassed",
			in:   AvailabilityInput{Date: wednesday, Today: wednesday, BypassLeadTime: true},
		},
		{
			name:     "sunday rejected",
			in:       AvailabilityInput{Date: sunday, Today: wednesday},
			wantRule: RuleClosureDay,
			wantMsg:  "No recibimos pedidos en domingo.",
		},
		{
			name: "sunday bypassed",
			in:   AvailabilityInput{Date: sunday, Today: wednesday, BypassClosureDay: true},
		},
		{
			name:     "closure day reported before lead time",
			in:       AvailabilityInput{Date: sunday, Today: sunday},
			wantRule: RuleClosureDay,
		},
		{
			name:     "blackout with configured message",
			in:       AvailabilityInput{Date: monday.AddDays(1), Today: wednesday, Blackout: blackout},
			wantRule: RuleBlackout,
			wantMsg:  "Cerrado por vacaciones",
		},
		{
			name:     "blackout inclusive end",
			in:       AvailabilityInput{Date: monday.AddDays(2), Today: wednesday, Blackout: blackout},
			wantRule: RuleBlackout,
		},
		{
			name: "blackout ignores dates after range",
			in:   AvailabilityInput{Date: monday.AddDays(3), Today: wednesday, Blackout: blackout},
		},
		{
			name: "blackout not bypassable",
			in: AvailabilityInput{
				Date: monday, Today: wednesday, Blackout: blackout,
				BypassClosureDay: true, BypassLeadTime: true,
			},
			wantRule: RuleBlackout,
		},
		{
			name: "disabled blackout ignored",
			in: AvailabilityInput{
				Date: monday, Today: wednesday,
				Blackout: domain.BlackoutConfig{Ranges: blackout.Ranges},
			},
		},
		{
			name: "blackout default message",
			in: AvailabilityInput{
				Date: monday, Today: wednesday,
				Blackout: domain.BlackoutConfig{Enabled: true, Ranges: blackout.Ranges},
			},
			wantRule: RuleBlackout,
			wantMsg:  "⚠️ No estamos recibiendo pedidos en esas fechas.",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := CheckAvailability(tc.in)
			if tc.wantRule == "" {
				require.NoError(t, err)
				return
			}
			v, ok := AsViolation(err)
			require.True(t, ok, "expected violation, got %v", err)
			assert.Equal(t, tc.wantRule, v.Rule)
			if tc.wantMsg != "" {
				assert.Equal(t, tc.wantMsg, v.Message)
			}
		})
	}
}

func TestCheckAvailabilityFullBypass(t *testing.T) {
	t.Parallel()

	bypass := func(d civil.Date, blackout domain.BlackoutConfig) error {
		return CheckAvailability(AvailabilityInput{
			Date:             d,
			Today:            wednesday,
			Blackout:         blackout,
			BypassClosureDay: true,
			BypassLeadTime:   true,
		})
	}
	require.NoError(t, bypass(sunday, domain.BlackoutConfig{}))
	require.NoError(t, bypass(wednesday, domain.BlackoutConfig{}))

	blackout := domain.BlackoutConfig{Enabled: true, Ranges: []domain.DateRange{{Start: sunday, End: sunday}}}
	v, ok := AsViolation(bypass(sunday, blackout))
	require.True(t, ok)
	assert.Equal(t, RuleBlackout, v.Rule)

	assert.True(t, errors.Is(bypass(civil.Date{}, domain.BlackoutConfig{}), ErrMalformedDate))
}

func TestOperationalDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	// 03:00 UTC on the 12th is still the evening of the 11th in Mexico City.
	now := time.Date(2025, time.June, 12, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, wednesday, OperationalDay(now, loc))
	assert.Equal(t, thursday, OperationalDay(now, time.UTC))
}
