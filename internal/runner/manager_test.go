package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/runner"
	"github.com/pulsebench/pulsebench/internal/session"
)

// blockingScenario holds each iteration open until the VU is cancelled.
type blockingScenario struct {
	live   *atomic.Int64
	closed *atomic.Int64
}

func (s *blockingScenario) Iterate(ctx context.Context) error {
	s.live.Add(1)
	defer s.live.Add(-1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingScenario) Close() error {
	s.closed.Add(1)
	return nil
}

type funcScenario func(ctx context.Context) error

func (f funcScenario) Iterate(ctx context.Context) error { return f(ctx) }
func (f funcScenario) Close() error                      { return nil }

func TestManagerFollowsStages(t *testing.T) {
	var live, closed atomic.Int64
	reg := metrics.NewRegistry()
	m, err := runner.NewManager(runner.Options{
		Stages: []runner.Stage{
			{Duration: 100 * time.Millisecond, Target: 4},
			{Duration: 200 * time.Millisecond, Target: 4},
			{Duration: 100 * time.Millisecond, Target: 0},
		},
		PollInterval: 5 * time.Millisecond,
		GracefulStop: time.Second,
		Registry:     reg,
		NewScenario: func(id int) (runner.Scenario, error) {
			return &blockingScenario{live: &live, closed: &closed}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PeakVUs != 4 || res.Spawned != 4 {
		t.Fatalf("expected 4 VUs, got peak=%d spawned=%d", res.PeakVUs, res.Spawned)
	}
	if res.Stragglers != 0 {
		t.Fatalf("unexpected stragglers: %d", res.Stragglers)
	}
	if live.Load() != 0 || closed.Load() != 4 {
		t.Fatalf("expected all VUs stopped and closed, live=%d closed=%d", live.Load(), closed.Load())
	}
	if res.Iterations != 0 {
		t.Fatalf("interrupted iterations must not count, got %d", res.Iterations)
	}
	if g := reg.Snapshot().Gauges[runner.MetricVUs]; g.Max != 4 || g.Value != 0 {
		t.Fatalf("unexpected vus gauge %+v", g)
	}
	if g := reg.Snapshot().Gauges[runner.MetricVUsMax]; g.Value != 4 {
		t.Fatalf("unexpected vus_max gauge %+v", g)
	}
}

func TestManagerRetiresNewestFirst(t *testing.T) {
	var mu sync.Mutex
	var stopped []int
	m, err := runner.NewManager(runner.Options{
		Stages: []runner.Stage{
			{Duration: 50 * time.Millisecond, Target: 3},
			{Duration: 150 * time.Millisecond, Target: 3},
			{Duration: time.Millisecond, Target: 1},
			{Duration: 150 * time.Millisecond, Target: 1},
		},
		StartTarget:  3,
		PollInterval: 5 * time.Millisecond,
		NewScenario: func(id int) (runner.Scenario, error) {
			return funcScenario(func(ctx context.Context) error {
				<-ctx.Done()
				mu.Lock()
				stopped = append(stopped, id)
				mu.Unlock()
				return nil
			}), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Retired != 2 {
		t.Fatalf("expected 2 retired, got %d", res.Retired)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(stopped) != 3 || stopped[2] != 1 {
		t.Fatalf("expected VU 1 to outlive 2 and 3, stop order %v", stopped)
	}
}

func TestManagerIsolatesFailures(t *testing.T) {
	var calls atomic.Int64
	m, err := runner.NewManager(runner.Options{
		Stages:       []runner.Stage{{Duration: 150 * time.Millisecond, Target: 3}},
		StartTarget:  3,
		PollInterval: 5 * time.Millisecond,
		FailurePause: time.Millisecond,
		NewScenario: func(id int) (runner.Scenario, error) {
			return funcScenario(func(ctx context.Context) error {
				n := calls.Add(1)
				switch n % 3 {
				case 0:
					panic("boom")
				case 1:
					return &session.HandshakeError{Protocol: "websocket", Status: 403}
				default:
					time.Sleep(time.Millisecond)
					return nil
				}
			}), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("failures must not abort the run: %v", err)
	}
	if res.Errors == 0 || res.Iterations <= res.Errors {
		t.Fatalf("expected a mix of failures and successes, got %+v", res)
	}
	if res.ErrorsByKind["VU panic"] == 0 || res.ErrorsByKind["Handshake rejected"] == 0 {
		t.Fatalf("expected panics and handshake errors by kind, got %v", res.ErrorsByKind)
	}
}

func TestManagerUnsetTargetCountsEveryIteration(t *testing.T) {
	reg := metrics.NewRegistry()
	m, err := runner.NewManager(runner.Options{
		Stages:       []runner.Stage{{Duration: 100 * time.Millisecond, Target: 2}},
		StartTarget:  2,
		PollInterval: 5 * time.Millisecond,
		FailurePause: 5 * time.Millisecond,
		Registry:     reg,
		NewScenario: func(id int) (runner.Scenario, error) {
			return funcScenario(func(ctx context.Context) error {
				return &session.ConfigurationError{Reason: "TARGET_URL is not set"}
			}), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan runner.Result, 1)
	go func() {
		res, _ := m.Run(context.Background())
		done <- res
	}()

	select {
	case res := <-done:
		if res.Iterations == 0 || res.Errors != res.Iterations {
			t.Fatalf("expected every iteration to fail, got %d/%d", res.Errors, res.Iterations)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate")
	}
}

func TestManagerCountsTimeoutsOnLiveVUs(t *testing.T) {
	reg := metrics.NewRegistry()
	m, err := runner.NewManager(runner.Options{
		Stages:       []runner.Stage{{Duration: 100 * time.Millisecond, Target: 1}},
		StartTarget:  1,
		PollInterval: 5 * time.Millisecond,
		FailurePause: 5 * time.Millisecond,
		Registry:     reg,
		NewScenario: func(id int) (runner.Scenario, error) {
			return funcScenario(func(ctx context.Context) error {
				// a client timeout wraps context.DeadlineExceeded while the VU is live
				return &session.HandshakeError{Protocol: "sse", Err: fmt.Errorf("no response: %w", context.DeadlineExceeded)}
			}), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Iterations == 0 || res.Errors != res.Iterations {
		t.Fatalf("expected every timed out iteration to fail, got %d/%d", res.Errors, res.Iterations)
	}
}

func TestManagerNoVirtualUsers(t *testing.T) {
	m, err := runner.NewManager(runner.Options{
		Stages:       []runner.Stage{{Duration: 50 * time.Millisecond, Target: 2}},
		StartTarget:  2,
		PollInterval: 5 * time.Millisecond,
		NewScenario: func(id int) (runner.Scenario, error) {
			return nil, errors.New("dial refused")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if !errors.Is(err, runner.ErrNoVirtualUsers) {
		t.Fatalf("expected ErrNoVirtualUsers, got %v", err)
	}
	if res.StartErrors == 0 {
		t.Fatal("expected start errors to be counted")
	}
}

func TestManagerZeroTargetIsNotFatal(t *testing.T) {
	m, err := runner.NewManager(runner.Options{
		Stages:       []runner.Stage{{Duration: 20 * time.Millisecond, Target: 0}},
		PollInterval: 5 * time.Millisecond,
		NewScenario: func(id int) (runner.Scenario, error) {
			return nil, errors.New("unused")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("an idle plan should not be fatal: %v", err)
	}
}

func TestManagerReportsStragglers(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m, err := runner.NewManager(runner.Options{
		Stages:       []runner.Stage{{Duration: 30 * time.Millisecond, Target: 2}},
		StartTarget:  2,
		PollInterval: 5 * time.Millisecond,
		GracefulStop: 20 * time.Millisecond,
		NewScenario: func(id int) (runner.Scenario, error) {
			return funcScenario(func(ctx context.Context) error {
				<-release
				return nil
			}), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("stragglers must not be fatal: %v", err)
	}
	if res.Stragglers != 2 {
		t.Fatalf("expected 2 stragglers, got %d", res.Stragglers)
	}
}

func TestManagerExternalCancel(t *testing.T) {
	var live, closed atomic.Int64
	m, err := runner.NewManager(runner.Options{
		Stages:       []runner.Stage{{Duration: time.Hour, Target: 3}},
		StartTarget:  3,
		PollInterval: 5 * time.Millisecond,
		NewScenario: func(id int) (runner.Scenario, error) {
			return &blockingScenario{live: &live, closed: &closed}, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := m.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Interrupted || closed.Load() != 3 {
		t.Fatalf("expected interrupted run with 3 closed VUs, got %+v closed=%d", res, closed.Load())
	}
}

func TestNewManagerValidates(t *testing.T) {
	if _, err := runner.NewManager(runner.Options{Stages: []runner.Stage{{Duration: time.Second, Target: 1}}}); err == nil {
		t.Fatal("expected error without a scenario factory")
	}
	factory := func(int) (runner.Scenario, error) { return nil, nil }
	if _, err := runner.NewManager(runner.Options{NewScenario: factory}); !errors.Is(err, runner.ErrNoStages) {
		t.Fatalf("expected ErrNoStages, got %v", err)
	}
}
