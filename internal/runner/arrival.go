package runner

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ArrivalModel selects how iteration starts are spaced within one VU.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// ParseArrivalModel accepts "uniform" (default) or "poisson".
func ParseArrivalModel(s string) (ArrivalModel, error) {
	switch ArrivalModel(strings.ToLower(strings.TrimSpace(s))) {
	case "", ArrivalModelUniform:
		return ArrivalModelUniform, nil
	case ArrivalModelPoisson:
		return ArrivalModelPoisson, nil
	default:
		return "", fmt.Errorf("unknown arrival model %q", s)
	}
}

// pacer gates the start of each iteration of one VU.
type pacer interface {
	Wait(ctx context.Context) error
}

// newPacer returns nil when iterations run back to back.
func newPacer(opt Options, vuID int) pacer {
	if opt.IterationRate <= 0 {
		return nil
	}
	switch opt.ArrivalModel {
	case ArrivalModelPoisson:
		sampler := opt.PoissonSampler
		if sampler == nil {
			seeded := rand.New(rand.NewSource(opt.RandomSeed + int64(vuID)))
			sampler = seeded.ExpFloat64
		}
		return &poissonArrival{rate: opt.IterationRate, sample: sampler}
	default:
		burst := int(math.Ceil(opt.IterationRate))
		if burst < 1 {
			burst = 1
		}
		return &uniformArrival{limiter: rate.NewLimiter(rate.Limit(opt.IterationRate), burst)}
	}
}

// uniformArrival spaces iterations evenly through a token bucket.
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	return u.limiter.Wait(ctx)
}

// poissonArrival samples exponential gaps to approximate a Poisson process.
type poissonArrival struct {
	mu     sync.Mutex
	rate   float64
	sample func() float64
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	delay := p.nextDelay()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) nextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate <= 0 || p.sample == nil {
		return 0
	}
	delay := float64(time.Second) * p.sample() / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}
