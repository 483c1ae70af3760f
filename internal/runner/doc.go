// Package runner drives virtual users against a staged concurrency plan.
//
// A [StagePlan] maps elapsed run time to a target VU count: each [Stage]
// ramps linearly from the previous target to its own over its duration, or
// holds when the two are equal.
//
//	plan, _ := runner.NewStagePlan([]runner.Stage{
//		{Duration: 20 * time.Second, Target: 100},
//		{Duration: 40 * time.Second, Target: 100},
//		{Duration: 10 * time.Second, Target: 0},
//	}, 0)
//	vus, done := plan.VUsAt(elapsed)
//
// The [Manager] polls the plan on a fixed interval and starts or retires VUs
// so the live count follows it. Each VU owns one [Scenario], built by a
// [ScenarioFactory], and runs its iterations in its own goroutine:
//
//	m, err := runner.NewManager(runner.Options{
//		Stages:      stages,
//		NewScenario: factory,
//		Registry:    reg,
//		Logger:      logger,
//	})
//	res, err := m.Run(ctx)
//
// Retirement cancels the newest VUs first. At run end every VU is cancelled
// and given GracefulStop to return; those that do not are reported as
// stragglers. Iteration errors and panics are counted per kind and never
// stop the run. Only a run where no VU could be built returns
// [ErrNoVirtualUsers].
//
// [Retry] with [ReconnectPolicy] provides bounded reconnects with exponential
// backoff for scenarios that opt in.
package runner
