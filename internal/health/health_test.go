package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(ctx context.Context) error { return nil }

func fail(ctx context.Context) error { return errors.New("connection refused") }

func TestChecker_Register(t *testing.T) {
	c := NewChecker(0)
	assert.Error(t, c.Register(Check{Run: ok}))
	assert.Error(t, c.Register(Check{Name: "db"}))
	require.NoError(t, c.Register(Check{Name: "db", Run: ok}))
	assert.Equal(t, 30*time.Second, c.checks["db"].Timeout)
}

func TestChecker_Run(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		want   Status
	}{
		{name: "no checks", want: StatusUnknown},
		{
			name:   "all healthy",
			checks: []Check{{Name: "db", Critical: true, Run: ok}, {Name: "key", Run: ok}},
			want:   StatusHealthy,
		},
		{
			name:   "optional failure degrades",
			checks: []Check{{Name: "db", Critical: true, Run: ok}, {Name: "key", Run: fail}},
			want:   StatusDegraded,
		},
		{
			name:   "critical failure",
			checks: []Check{{Name: "db", Critical: true, Run: fail}, {Name: "key", Run: ok}},
			want:   StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(time.Second)
			for _, check := range tt.checks {
				require.NoError(t, c.Register(check))
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Results, len(tt.checks))
		})
	}
}

func TestChecker_ResultsAreSortedAndCarryErrors(t *testing.T) {
	c := NewChecker(time.Second)
	require.NoError(t, c.Register(Check{Name: "encryptor", Critical: true, Run: fail}))
	require.NoError(t, c.Register(Check{Name: "database", Critical: true, Run: ok}))

	report := c.Run(context.Background())
	require.Len(t, report.Results, 2)
	assert.Equal(t, "database", report.Results[0].Name)
	assert.Equal(t, StatusHealthy, report.Results[0].Status)
	assert.Equal(t, "encryptor", report.Results[1].Name)
	assert.Equal(t, "connection refused", report.Results[1].Error)
	assert.True(t, report.Results[1].Critical)
}

func TestChecker_Timeout(t *testing.T) {
	c := NewChecker(time.Second)
	require.NoError(t, c.Register(Check{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Results[0].Error)
}
