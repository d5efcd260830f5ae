package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls int32
	n     int
	err   error
}

func (c *countingExpirer) ExpireStaleHolds(ctx context.Context) (int, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.n, c.err
}

type countingJanitor struct{ calls int32 }

func (c *countingJanitor) Cleanup() int {
	atomic.AddInt32(&c.calls, 1)
	return 0
}

func TestCronService_Start(t *testing.T) {
	expirer := &countingExpirer{n: 2}
	svc := NewCronService(expirer, &countingJanitor{}, "@every 1s", testLogger())

	require.NoError(t, svc.Start())
	defer svc.Stop()

	status := svc.GetJobStatus()
	assert.Equal(t, 2, status["job_count"])
	assert.Equal(t, true, status["running"])

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&expirer.calls) > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestCronService_InvalidSchedule(t *testing.T) {
	svc := NewCronService(&countingExpirer{}, nil, "not a schedule", testLogger())
	assert.Error(t, svc.Start())
}

func TestCronService_RunExpireHoldsNow(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("db down")}
	svc := NewCronService(expirer, nil, "", testLogger())

	svc.RunExpireHoldsNow()
	assert.Equal(t, int32(1), atomic.LoadInt32(&expirer.calls))
	assert.Equal(t, "@every 1m", svc.spec)
}
