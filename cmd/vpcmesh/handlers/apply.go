package handlers

import (
	"context"
	"errors"

	"github.com/imamik/vpcmesh/internal/orchestration"
	"github.com/imamik/vpcmesh/internal/provisioning"
)

// ApplyOptions are the flags of the apply command.
type ApplyOptions struct {
	Units    []string
	WithDeps bool
	TUI      bool
}

// Apply converges the selected units, or all of them, and prints a report.
// A failed unit halts its dependents but not independent units; the
// returned error joins every unit failure.
func Apply(ctx context.Context, opts Options, applyOpts ApplyOptions) (err error) {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, s) }()

	run := func(ctx context.Context, obs provisioning.Observer) (*orchestration.Report, error) {
		pctx := s.pctx.WithContext(ctx)
		pctx.Observer = obs
		return s.composer.Apply(pctx, s.specs, orchestration.ApplyOptions{
			Units:            applyOpts.Units,
			WithDependencies: applyOpts.WithDeps,
		})
	}

	var report *orchestration.Report
	if applyOpts.TUI {
		plan, planErr := s.composer.Plan(ctx, s.specs)
		if planErr != nil {
			return planErr
		}
		report, err = runApplyTUI(ctx, s.cfg.Name, plan, provisioning.NewDiscardObserver(), run)
	} else {
		s.log.Info("applying topology", "units", len(s.specs))
		report, err = run(ctx, s.pctx.Observer)
	}

	if report != nil {
		s.render.Report("vpcmesh apply: "+s.cfg.Name, report)
	}
	return err
}

// joinClose closes the session and joins a close failure into err.
func joinClose(err error, s *session) error {
	return errors.Join(err, s.close())
}
