package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brokerwatch/internal/tokens"
)

type countingJob struct {
	runs  atomic.Int32
	err   error
	panic bool
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	return j.err
}

func TestCronScheduler_RunsJobs(t *testing.T) {
	s := NewCronScheduler(tokens.KST, zerolog.Nop())
	ok := &countingJob{}
	failing := &countingJob{err: errors.New("upload failed")}
	panicking := &countingJob{panic: true}

	require.NoError(t, s.AddJob("@every 1s", ok))
	require.NoError(t, s.AddJob("@every 1s", failing))
	require.NoError(t, s.AddJob("@every 1s", panicking))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return ok.runs.Load() > 0 && failing.runs.Load() > 0 && panicking.runs.Load() > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestCronScheduler_RejectsBadSchedule(t *testing.T) {
	s := NewCronScheduler(time.UTC, zerolog.Nop())
	assert.Error(t, s.AddJob("every day at noon", &countingJob{}))
	// five-field specs are rejected because seconds are required
	assert.Error(t, s.AddJob("0 3 * * *", &countingJob{}))
	assert.NoError(t, s.AddJob("0 0 3 * * *", &countingJob{}))
}
