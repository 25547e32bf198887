package change

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/relagg"
)

// PlanAll plans the given roots concurrently, running at most limit
// planning calls at a time (no limit when limit <= 0). Plans are returned
// in input order. Failures of single roots are collected into an
// *relagg.AggregateError; a cancelled context aborts planning.
func PlanAll(ctx context.Context, p *Planner, kind Kind, roots []any, limit int) ([]*Plan, error) {
	plans := make([]*Plan, len(roots))
	errs := make([]error, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, root := range roots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var err error
			switch kind {
			case Save:
				plans[i], err = p.Save(root)
			case Delete:
				plans[i], err = p.Delete(root)
			default:
				err = relagg.Invariantf("PlanAll", "", "unknown change kind %d", kind)
			}
			if err != nil {
				errs[i] = fmt.Errorf("change: plan root %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := relagg.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return plans, nil
}

// AddAll adds the plans to the container in order.
func AddAll(c Container, plans []*Plan) error {
	for _, p := range plans {
		if err := c.Add(p); err != nil {
			return err
		}
	}
	return nil
}

// SaveAll plans the saves of all roots and combines them in c.
func SaveAll(ctx context.Context, p *Planner, c Container, roots []any, limit int) error {
	plans, err := PlanAll(ctx, p, Save, roots, limit)
	if err != nil {
		return err
	}
	return AddAll(c, plans)
}
