package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donabox/api/internal/domain"
)

func healthy(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func TestDependencyHealthCollect(t *testing.T) {
	cases := []struct {
		name      string
		checks    []DependencyCheck
		want      string
		wantCheck map[string]string
	}{
		{
			name: "all healthy",
			checks: []DependencyCheck{
				{Name: "firestore", Check: healthy},
				{Name: "pubsub", Optional: true, Check: healthy},
			},
			want:      domain.HealthStatusOK,
			wantCheck: map[string]string{"firestore": domain.HealthStatusOK, "pubsub": domain.HealthStatusOK},
		},
		{
			name: "order events topic down",
			checks: []DependencyCheck{
				{Name: "firestore", Check: healthy},
				{Name: "pubsub", Optional: true, Check: failing("topic missing")},
			},
			want:      domain.HealthStatusDegraded,
			wantCheck: map[string]string{"pubsub": domain.HealthStatusDegraded},
		},
		{
			name: "order store down",
			checks: []DependencyCheck{
				{Name: "firestore", Check: failing("permission denied")},
				{Name: "pubsub", Optional: true, Check: failing("down")},
			},
			want:      domain.HealthStatusError,
			wantCheck: map[string]string{"firestore": domain.HealthStatusError, "pubsub": domain.HealthStatusDegraded},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks)
			require.NoError(t, err)

			report, err := repo.Collect(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, report.Status)
			assert.Len(t, report.Checks, len(tc.checks))
			for name, status := range tc.wantCheck {
				assert.Equal(t, status, report.Checks[name].Status, name)
			}
		})
	}
}

func TestDependencyHealthRecordsErrorAndClock(t *testing.T) {
	now := time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository(
		[]DependencyCheck{{Name: "mail", Optional: true, Check: failing("outbox unavailable")}},
		WithDependencyClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	check := report.Checks["mail"]
	assert.Equal(t, "outbox unavailable", check.Error)
	assert.Equal(t, now, check.CheckedAt)
	assert.Equal(t, now, report.GeneratedAt)
	assert.Zero(t, check.Latency)
}

func TestDependencyHealthTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Timeout: 5 * time.Millisecond, Check: slow},
		{Name: "pubsub", Optional: true, Check: slow},
	}, WithDependencyTimeout(5*time.Millisecond))
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusError, report.Status)
	assert.Equal(t, "timeout", report.Checks["firestore"].Detail)
	assert.Equal(t, domain.HealthStatusDegraded, report.Checks["pubsub"].Status)
}

func TestDependencyHealthProbeIgnoringDeadline(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{{
		Name:    "firestore",
		Timeout: time.Millisecond,
		Check: func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		},
	}})
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusError, report.Checks["firestore"].Status)
	assert.Equal(t, "timeout", report.Checks["firestore"].Detail)
}

func TestNewDependencyHealthRepositoryValidates(t *testing.T) {
	cases := map[string][]DependencyCheck{
		"empty":     nil,
		"no name":   {{Name: " ", Check: healthy}},
		"no func":   {{Name: "firestore"}},
		"duplicate": {{Name: "firestore", Check: healthy}, {Name: "firestore", Check: healthy}},
	}
	for name, checks := range cases {
		_, err := NewDependencyHealthRepository(checks)
		assert.Error(t, err, name)
	}
}
