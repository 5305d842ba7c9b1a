package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/container-compose/internal/core/compose"
)

// scriptedInspector returns statuses in order, repeating the last one.
type scriptedInspector struct {
	mu       sync.Mutex
	statuses []ContainerStatus
	errs     []error
	calls    int
}

func (s *scriptedInspector) Inspect(_ context.Context, name string) (ContainerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return ContainerStatus{}, s.errs[i]
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	st := s.statuses[i]
	st.Name = name
	return st, nil
}

var fastReadiness = ReadinessConfig{Interval: time.Millisecond, Retries: 20, Timeout: time.Second}

// =============================================================================
// WaitForCondition Tests
// =============================================================================

func TestWaitForCondition_StartedNeverPolls(t *testing.T) {
	insp := &scriptedInspector{}
	require.NoError(t, WaitForCondition(context.Background(), insp, "db", compose.ConditionStarted, fastReadiness, nil))
	require.NoError(t, WaitForCondition(context.Background(), insp, "db", "", fastReadiness, nil))
	assert.Zero(t, insp.calls)
}

func TestWaitForCondition_HealthyAfterStarting(t *testing.T) {
	insp := &scriptedInspector{statuses: []ContainerStatus{
		{State: "running", Health: "starting"},
		{State: "running", Health: "starting"},
		{State: "running", Health: "healthy"},
	}}
	err := WaitForCondition(context.Background(), insp, "db", compose.ConditionHealthy, fastReadiness, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, insp.calls)
}

func TestWaitForCondition_HealthyWithoutHealthcheck(t *testing.T) {
	insp := &scriptedInspector{statuses: []ContainerStatus{{State: "created"}, {State: "running"}}}
	require.NoError(t, WaitForCondition(context.Background(), insp, "db", compose.ConditionHealthy, fastReadiness, nil))
}

func TestWaitForCondition_InspectErrorsAreRetried(t *testing.T) {
	insp := &scriptedInspector{
		errs:     []error{errors.New("not yet"), nil},
		statuses: []ContainerStatus{{}, {State: "running"}},
	}
	require.NoError(t, WaitForCondition(context.Background(), insp, "db", compose.ConditionHealthy, fastReadiness, nil))
	assert.Equal(t, 2, insp.calls)
}

func TestWaitForCondition_HealthyTimesOut(t *testing.T) {
	insp := &scriptedInspector{statuses: []ContainerStatus{{State: "running", Health: "unhealthy"}}}
	cfg := ReadinessConfig{Interval: time.Millisecond, Retries: 3, Timeout: time.Second}

	err := WaitForCondition(context.Background(), insp, "db", compose.ConditionHealthy, cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyTimeout)
	assert.Equal(t, 4, insp.calls, "first attempt plus three retries")
}

func TestWaitForCondition_OverallTimeout(t *testing.T) {
	insp := &scriptedInspector{statuses: []ContainerStatus{{State: "running", Health: "starting"}}}
	cfg := ReadinessConfig{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}

	err := WaitForCondition(context.Background(), insp, "db", compose.ConditionHealthy, cfg, nil)
	assert.ErrorIs(t, err, ErrDependencyTimeout)
}

func TestWaitForCondition_HealthyButExited(t *testing.T) {
	insp := &scriptedInspector{statuses: []ContainerStatus{{State: "exited", ExitCode: 1}}}
	err := WaitForCondition(context.Background(), insp, "db", compose.ConditionHealthy, fastReadiness, nil)
	assert.ErrorIs(t, err, ErrDependencyFailed)
	assert.Equal(t, 1, insp.calls)
}

func TestWaitForCondition_CompletedSuccessfully(t *testing.T) {
	insp := &scriptedInspector{statuses: []ContainerStatus{
		{State: "running"},
		{State: "exited", ExitCode: 0},
	}}
	err := WaitForCondition(context.Background(), insp, "migrate", compose.ConditionCompletedSuccessfully, fastReadiness, nil)
	require.NoError(t, err)
}

func TestWaitForCondition_CompletedWithFailure(t *testing.T) {
	insp := &scriptedInspector{statuses: []ContainerStatus{
		{State: "running"},
		{State: "exited", ExitCode: 3},
	}}
	err := WaitForCondition(context.Background(), insp, "migrate", compose.ConditionCompletedSuccessfully, fastReadiness, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyFailed)
	assert.NotErrorIs(t, err, ErrDependencyTimeout)
	assert.Contains(t, err.Error(), "exited with code 3")
	assert.Equal(t, 2, insp.calls, "non-zero exit is not retried")
}

func TestWaitForCondition_CompletedFlatStatusNonZero(t *testing.T) {
	st, err := ParseInspect("job", []byte(`[{"status":"stopped","exitCode":3}]`))
	require.NoError(t, err)

	insp := &scriptedInspector{statuses: []ContainerStatus{st}}
	err = WaitForCondition(context.Background(), insp, "job", compose.ConditionCompletedSuccessfully, fastReadiness, nil)
	assert.ErrorIs(t, err, ErrDependencyFailed)
	assert.Contains(t, err.Error(), "exited with code 3")
}

func TestWaitForCondition_CompletedWithoutExitCode(t *testing.T) {
	insp := &scriptedInspector{statuses: []ContainerStatus{{State: "stopped", ExitUnknown: true}}}
	err := WaitForCondition(context.Background(), insp, "job", compose.ConditionCompletedSuccessfully, fastReadiness, nil)
	assert.ErrorIs(t, err, ErrDependencyFailed)
	assert.Contains(t, err.Error(), "without reporting an exit code")
	assert.Equal(t, 1, insp.calls)
}

func TestWaitForCondition_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	insp := &scriptedInspector{statuses: []ContainerStatus{{State: "running", Health: "starting"}}}
	err := WaitForCondition(ctx, insp, "db", compose.ConditionHealthy, fastReadiness, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
