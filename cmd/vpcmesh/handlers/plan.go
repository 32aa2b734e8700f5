package handlers

import "context"

// Plan validates the topology and prints the apply order, the address plan
// and the change each unit would see. It makes no provider calls.
func Plan(ctx context.Context, opts Options) (err error) {
	s, err := newSession(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { err = joinClose(err, s) }()

	plan, err := s.composer.Plan(ctx, s.specs)
	if err != nil {
		return err
	}
	s.render.Plan(s.cfg.Name, plan)
	return nil
}
