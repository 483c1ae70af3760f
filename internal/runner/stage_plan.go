package runner

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Stage is one segment of a run: ramp (or hold) to Target VUs over Duration.
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Target   int           `json:"target" yaml:"target"`
}

func (s Stage) String() string {
	return fmt.Sprintf("%s:%d", s.Duration, s.Target)
}

// ErrNoStages is returned when a plan has no stages.
var ErrNoStages = errors.New("at least one stage is required")

// StagePlan maps elapsed run time to a target VU count.
type StagePlan struct {
	stages   []Stage
	segments []stageSegment
	duration time.Duration
	maxVUs   int
}

type stageSegment struct {
	start    time.Duration
	duration time.Duration
	from     float64
	to       float64
}

// NewStagePlan compiles stages. The first stage ramps from startTarget.
func NewStagePlan(stages []Stage, startTarget int) (*StagePlan, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if startTarget < 0 {
		return nil, fmt.Errorf("start target must be >= 0, got %d", startTarget)
	}

	plan := &StagePlan{stages: append([]Stage(nil), stages...), maxVUs: startTarget}
	prev := float64(startTarget)
	var offset time.Duration
	for i, st := range stages {
		if st.Duration <= 0 {
			return nil, fmt.Errorf("stage %d: duration must be > 0, got %s", i+1, st.Duration)
		}
		if st.Target < 0 {
			return nil, fmt.Errorf("stage %d: target must be >= 0, got %d", i+1, st.Target)
		}
		plan.segments = append(plan.segments, stageSegment{
			start:    offset,
			duration: st.Duration,
			from:     prev,
			to:       float64(st.Target),
		})
		offset += st.Duration
		prev = float64(st.Target)
		if st.Target > plan.maxVUs {
			plan.maxVUs = st.Target
		}
	}
	plan.duration = offset
	return plan, nil
}

// TargetAt returns the interpolated target at elapsed. done is true once
// elapsed reaches the total duration, in which case the last stage's target
// is returned.
func (p *StagePlan) TargetAt(elapsed time.Duration) (target float64, done bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= p.duration {
		return p.segments[len(p.segments)-1].to, true
	}
	for _, seg := range p.segments {
		if elapsed >= seg.start+seg.duration {
			continue
		}
		if seg.from == seg.to {
			return seg.from, false
		}
		progress := float64(elapsed-seg.start) / float64(seg.duration)
		return seg.from + (seg.to-seg.from)*progress, false
	}
	return p.segments[len(p.segments)-1].to, true
}

// VUsAt is TargetAt rounded to the nearest whole VU.
func (p *StagePlan) VUsAt(elapsed time.Duration) (int, bool) {
	target, done := p.TargetAt(elapsed)
	return int(math.Round(target)), done
}

// Duration returns the sum of all stage durations.
func (p *StagePlan) Duration() time.Duration { return p.duration }

// MaxVUs returns the highest target in the plan.
func (p *StagePlan) MaxVUs() int { return p.maxVUs }

// Stages returns a copy of the compiled stages.
func (p *StagePlan) Stages() []Stage { return append([]Stage(nil), p.stages...) }
