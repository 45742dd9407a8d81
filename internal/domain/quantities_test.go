package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantitiesFromMap(t *testing.T) {
	cases := []struct {
		name    string
		in      map[string]int
		want    Quantities
		wantErr string
	}{
		{name: "empty", in: nil},
		{name: "known slots", in: map[string]int{"azucar": 2, "oreo": 4}, want: Quantities{Azucar: 2, Oreo: 4}},
		{name: "at cap", in: map[string]int{"cafe": MaxSlotUnits}, want: Quantities{Cafe: MaxSlotUnits}},
		{name: "unknown slot", in: map[string]int{"glaseada": 6}, wantErr: "unknown slot"},
		{name: "negative", in: map[string]int{"azucar": -1}, wantErr: "negative"},
		{name: "above cap", in: map[string]int{"azucar": MaxSlotUnits + 1}, wantErr: "exceeds"},
		{name: "wrapping sum", in: map[string]int{"azucar": math.MaxInt, "cafe": math.MaxInt, "oreo": 8}, wantErr: "exceeds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := QuantitiesFromMap(tc.in)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseQuantityPatch(t *testing.T) {
	patch, err := ParseQuantityPatch(map[string]int{"cafe": 0, "oreo": 6})
	require.NoError(t, err)
	assert.Equal(t, Quantities{Azucar: 4, Oreo: 6}, patch.Apply(Quantities{Azucar: 4, Cafe: 2}))

	for _, bad := range []map[string]int{
		{"mystery": 2},
		{"azucar": -3},
		{"azucar": MaxSlotUnits + 1},
		{"azucar": math.MaxInt},
	} {
		_, err := ParseQuantityPatch(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestTotalWithinCapsCannotWrap(t *testing.T) {
	var q Quantities
	for _, slot := range Slots {
		q.Set(slot, MaxSlotUnits)
	}
	assert.Equal(t, MaxSlotUnits*len(Slots), q.Total())
}
