// Package harness collects notebook test cases and runs them in isolation.
//
// A session has two phases. Collect lists the notebooks in scope (every
// notebook, or only those changed against the base revision), drops the
// skipped ones and assigns partition labels. Run executes each selected
// case in its own cloned environment and reports the outcome:
//
//	h, err := harness.New(harness.Options{Config: cfg, Logger: logger})
//	plan, err := h.Collect(ctx, harness.ScopeAll, "partition-0")
//	summary, err := h.Run(ctx, plan, 4)
//
// Cases are independent. A failing notebook never stops the others, and
// results are reported in collected order regardless of completion order.
//
// Reports written to Options.Report are deterministic given a fixed clock
// and ID generator, which is what the golden tests in this package rely on.
package harness
