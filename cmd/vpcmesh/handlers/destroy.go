package handlers

import (
	"context"

	"github.com/imamik/vpcmesh/internal/orchestration"
)

// Destroy tears down the selected units, or all recorded ones, in reverse
// dependency order. Units recorded in state but no longer declared are
// destroyed first.
func Destroy(ctx context.Context, opts Options, units []string) (err error) {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, s) }()

	s.log.Info("destroying topology", "units", units)
	report, err := s.composer.Destroy(s.pctx, s.specs, orchestration.DestroyOptions{Units: units})
	if report != nil {
		s.render.Report("vpcmesh destroy: "+s.cfg.Name, report)
	}
	return err
}
