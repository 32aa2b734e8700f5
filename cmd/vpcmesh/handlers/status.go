package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/imamik/vpcmesh/internal/orchestration"
)

// StatusOptions are the flags of the status command.
type StatusOptions struct {
	Refresh bool
	JSON    bool
}

// statusOutput is the JSON form of the status command.
type statusOutput struct {
	Topology string                   `json:"topology"`
	Drifts   []orchestration.Drift    `json:"drifts,omitempty"`
	Units    []orchestration.UnitView `json:"units"`
}

// Status prints every declared and recorded unit. With Refresh, live
// resources are compared with the records first, drifted units are marked
// and reachability is read from the live route tables.
func Status(ctx context.Context, opts Options, statusOpts StatusOptions) (err error) {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, s) }()

	var drifts []orchestration.Drift
	if statusOpts.Refresh {
		drifts, err = s.composer.Refresh(s.pctx)
		if err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
	}

	var views []orchestration.UnitView
	if statusOpts.Refresh {
		views, err = s.composer.LiveStatus(s.pctx, s.specs)
	} else {
		views, err = s.composer.Status(ctx, s.specs)
	}
	if err != nil {
		return err
	}

	if statusOpts.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statusOutput{Topology: s.cfg.Name, Drifts: drifts, Units: views})
	}

	if statusOpts.Refresh {
		s.render.Drifts(drifts)
	}
	s.render.Status(s.cfg.Name, views)
	return nil
}
