package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pulsebench/pulsebench/internal/metrics"
)

// Scenario is the per-VU workload. Iterate runs one iteration and must return
// promptly once ctx is cancelled. Close releases anything the scenario holds
// and is called once when the VU stops.
type Scenario interface {
	Iterate(ctx context.Context) error
	Close() error
}

// ScenarioFactory builds the scenario for VU id. Each VU gets its own
// protocol client.
type ScenarioFactory func(id int) (Scenario, error)

// Defaults applied by normalize.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultGracefulStop = 30 * time.Second
	DefaultFailurePause = 50 * time.Millisecond
)

// Options configure a Manager.
type Options struct {
	Stages       []Stage
	StartTarget  int             // VUs at t=0
	NewScenario  ScenarioFactory // required
	PollInterval time.Duration   // reconcile period
	GracefulStop time.Duration   // how long to wait for VUs at run end
	FailurePause time.Duration   // pause after a failed iteration; <0 disables

	IterationRate  float64 // per-VU iterations per second; 0 runs back to back
	ArrivalModel   ArrivalModel
	RandomSeed     int64
	PoissonSampler func() float64 // optional injection for tests

	Registry *metrics.Registry
	Logger   *zap.Logger
}

func (o *Options) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.GracefulStop <= 0 {
		o.GracefulStop = DefaultGracefulStop
	}
	if o.FailurePause == 0 {
		o.FailurePause = DefaultFailurePause
	}
	if o.FailurePause < 0 {
		o.FailurePause = 0
	}
	if o.IterationRate < 0 {
		o.IterationRate = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.Registry == nil {
		o.Registry = metrics.NewRegistry()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}
