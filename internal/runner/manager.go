package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/session"
)

// ErrNoVirtualUsers is returned when VUs were requested but none could start.
var ErrNoVirtualUsers = errors.New("no virtual user could be started")

// Metric names maintained by the Manager.
const (
	MetricVUs               = "vus"
	MetricVUsMax            = "vus_max"
	MetricIterations        = "iterations"
	MetricIterationDuration = "iteration_duration"
	MetricFailedIterations  = "failed_iterations"
)

// Result summarizes a run.
type Result struct {
	Duration     time.Duration
	Spawned      int64
	Retired      int64
	StartErrors  int64
	PeakVUs      int
	Iterations   int64
	Errors       int64
	ErrorsByKind map[string]int64
	Stragglers   int
	Interrupted  bool // ctx was cancelled before the plan finished
}

// Manager reconciles the number of running VUs with a StagePlan.
type Manager struct {
	opt  Options
	plan *StagePlan
	log  *zap.Logger

	vus        *metrics.Gauge
	vusMax     *metrics.Gauge
	iterations *metrics.Counter
	iterTime   *metrics.Trend
	failed     *metrics.Counter

	wg      sync.WaitGroup
	active  []*VirtualUser // in start order
	all     []*VirtualUser
	nextID  int
	peak    int
	spawned atomic.Int64
	retired atomic.Int64
	startEr atomic.Int64
	iters   atomic.Int64
	errs    atomic.Int64

	kindMu sync.Mutex
	kinds  map[string]int64
}

// NewManager validates opt and compiles its stages.
func NewManager(opt Options) (*Manager, error) {
	opt.normalize()
	if opt.NewScenario == nil {
		return nil, errors.New("runner: scenario factory is required")
	}
	plan, err := NewStagePlan(opt.Stages, opt.StartTarget)
	if err != nil {
		return nil, err
	}
	reg := opt.Registry
	return &Manager{
		opt:        opt,
		plan:       plan,
		log:        opt.Logger,
		vus:        reg.Gauge(MetricVUs),
		vusMax:     reg.Gauge(MetricVUsMax),
		iterations: reg.Counter(MetricIterations),
		iterTime:   reg.Trend(MetricIterationDuration),
		failed:     reg.Counter(MetricFailedIterations),
		kinds:      make(map[string]int64),
	}, nil
}

// Plan returns the compiled stage plan.
func (m *Manager) Plan() *StagePlan { return m.plan }

// Active returns the number of VUs that have not been asked to stop. It is
// only meaningful from the goroutine running Run or after Run returns.
func (m *Manager) Active() int { return len(m.active) }

// Run drives VUs until the plan completes or ctx is cancelled, then stops
// every VU and waits up to GracefulStop. Per-VU failures never abort the run.
func (m *Manager) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	m.vusMax.Set(int64(m.plan.MaxVUs()))
	vuCtx, cancelVUs := context.WithCancel(ctx)
	defer cancelVUs()

	ticker := time.NewTicker(m.opt.PollInterval)
	defer ticker.Stop()

	interrupted := false
	target, done := m.plan.VUsAt(0)
	m.reconcile(vuCtx, target)

loop:
	for !done {
		select {
		case <-ctx.Done():
			interrupted = true
			break loop
		case <-ticker.C:
			target, done = m.plan.VUsAt(time.Since(start))
			if !done {
				m.reconcile(vuCtx, target)
			}
		}
	}

	cancelVUs()
	for _, vu := range m.active {
		vu.stop()
	}
	m.active = nil
	m.vus.Set(0)
	stragglers := m.drain()

	res := Result{
		Duration:    time.Since(start),
		Spawned:     m.spawned.Load(),
		Retired:     m.retired.Load(),
		StartErrors: m.startEr.Load(),
		PeakVUs:     m.peak,
		Iterations:  m.iters.Load(),
		Errors:      m.errs.Load(),
		Stragglers:  stragglers,
		Interrupted: interrupted,
	}
	m.kindMu.Lock()
	if len(m.kinds) > 0 {
		res.ErrorsByKind = make(map[string]int64, len(m.kinds))
		for k, v := range m.kinds {
			res.ErrorsByKind[k] = v
		}
	}
	m.kindMu.Unlock()

	if res.Spawned == 0 && res.StartErrors > 0 {
		return res, ErrNoVirtualUsers
	}
	return res, nil
}

func (m *Manager) reconcile(ctx context.Context, target int) {
	for len(m.active) < target {
		if !m.spawn(ctx) {
			break
		}
	}
	for len(m.active) > target {
		last := len(m.active) - 1
		vu := m.active[last]
		m.active = m.active[:last]
		vu.stop()
		m.retired.Add(1)
		m.log.Debug("vu retired", zap.Int("vu", vu.ID), zap.Int("target", target))
	}
	m.vus.Set(int64(len(m.active)))
}

func (m *Manager) spawn(ctx context.Context) bool {
	m.nextID++
	id := m.nextID
	scenario, err := m.opt.NewScenario(id)
	if err != nil {
		m.startEr.Add(1)
		m.countError(err)
		m.log.Warn("vu failed to start", zap.Int("vu", id), zap.Error(err))
		return false
	}

	vu := newVirtualUser(ctx, id, scenario)
	m.active = append(m.active, vu)
	m.all = append(m.all, vu)
	m.spawned.Add(1)
	if len(m.active) > m.peak {
		m.peak = len(m.active)
	}

	m.wg.Add(1)
	go m.runVU(vu)
	m.log.Debug("vu started", zap.Int("vu", id))
	return true
}

func (m *Manager) runVU(vu *VirtualUser) {
	defer m.wg.Done()
	defer vu.markStopped()
	defer func() {
		if err := vu.scenario.Close(); err != nil {
			m.log.Debug("scenario close failed", zap.Int("vu", vu.ID), zap.Error(err))
		}
	}()

	pace := newPacer(m.opt, vu.ID)
	for vu.ctx.Err() == nil {
		if pace != nil {
			if err := pace.Wait(vu.ctx); err != nil {
				return
			}
		}

		began := time.Now()
		err := m.iterate(vu)
		if vu.ctx.Err() != nil {
			// the VU was stopped mid-iteration; its partial result is not counted
			return
		}

		m.iters.Add(1)
		m.iterations.Inc()
		m.iterTime.AddDuration(time.Since(began))
		if !session.IsFailure(err) {
			continue
		}

		m.errs.Add(1)
		m.failed.Inc()
		m.countError(err)
		m.log.Debug("iteration failed", zap.Int("vu", vu.ID), zap.Error(err))
		if m.opt.FailurePause > 0 {
			timer := time.NewTimer(m.opt.FailurePause)
			select {
			case <-vu.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// iterate runs one iteration, converting a panic into an error.
func (m *Manager) iterate(vu *VirtualUser) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{VU: vu.ID, Value: r}
		}
	}()
	return vu.scenario.Iterate(vu.ctx)
}

func (m *Manager) countError(err error) {
	kind := metrics.ErrorKind(err)
	m.kindMu.Lock()
	m.kinds[kind]++
	m.kindMu.Unlock()
}

// drain waits up to GracefulStop for every VU and returns how many are still
// running.
func (m *Manager) drain() int {
	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	timer := time.NewTimer(m.opt.GracefulStop)
	defer timer.Stop()
	select {
	case <-finished:
		return 0
	case <-timer.C:
	}

	stragglers := 0
	for _, vu := range m.all {
		select {
		case <-vu.done:
		default:
			stragglers++
			m.log.Warn("vu did not stop within grace period",
				zap.Int("vu", vu.ID),
				zap.Duration("grace", m.opt.GracefulStop),
				zap.Duration("age", time.Since(vu.StartTime)))
		}
	}
	return stragglers
}
