// Package batch runs contingency studies: every in-service branch is
// tripped in turn and the remaining network re-solved. A linear outage
// prescreen drops cases that provably cannot bind, and the survivors run
// concurrently, each on its own clone of the base case.
package batch

import (
	"context"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/gridfold/opf"
	"github.com/gridfold/opf/dispatch"
	"github.com/gridfold/opf/logger"
	"github.com/gridfold/opf/network"
	"github.com/gridfold/opf/ybus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// CaseResult is the outcome of one contingency case.
type CaseResult struct {
	// Branch is the tripped element.
	Branch string
	// Screened marks cases the linear prescreen dropped as harmless.
	Screened bool
	// Islanding marks outages that would split the network; they are not
	// solved.
	Islanding bool

	Solution *opf.Solution
	Err      error
}

// Runner drives N-1 studies through a dispatcher.
type Runner struct {
	disp *dispatch.Dispatcher

	// Parallelism bounds concurrent solves; zero means serial.
	Parallelism int
	// ScreenMargin is the loading fraction under which the prescreen drops
	// a case (post-outage projected flow below margin·rate on every
	// monitored branch). Zero disables screening.
	ScreenMargin float64
}

// NewRunner returns an N-1 runner over disp.
func NewRunner(disp *dispatch.Dispatcher) *Runner {
	return &Runner{disp: disp, Parallelism: 4}
}

// RunN1 solves the base case, prescreens single-branch outages against the
// base-case flows, and solves the surviving cases. Results come back in
// branch order. Solve failures are recorded per case, not returned; the
// returned error covers base-case failure or context cancellation only.
func (r *Runner) RunN1(ctx context.Context, net *network.Network, formulationID string) (base *opf.Solution, cases []CaseResult, err error) {
	log := logger.Logger().With().Str("study", "n-1").Str("formulation", formulationID).Logger()

	base, err = r.disp.Solve(ctx, net, formulationID)
	if err != nil {
		return nil, nil, err
	}

	nb := len(net.Branches)
	cases = make([]CaseResult, nb)
	solve := bitset.New(uint(nb))

	ptdf, perr := ybus.NewPTDF(net)
	var lodf *mat.Dense
	if perr == nil {
		lodf = ptdf.LODF(net)
	}

	for k, br := range net.Branches {
		cases[k].Branch = br.Name
		if br.Out {
			cases[k].Screened = true
			continue
		}
		if perr == nil && ptdf.IslandingOutage(net, k) {
			cases[k].Islanding = true
			continue
		}
		if lodf != nil && r.screen(net, base, lodf, k) {
			cases[k].Screened = true
			continue
		}
		solve.Set(uint(k))
	}
	log.Info().Uint("cases", solve.Count()).Int("branches", nb).Msg("prescreen done")

	g, gctx := errgroup.WithContext(ctx)
	if r.Parallelism > 0 {
		g.SetLimit(r.Parallelism)
	} else {
		g.SetLimit(1)
	}
	for k, ok := solve.NextSet(0); ok; k, ok = solve.NextSet(k + 1) {
		k := k
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outaged := net.Clone()
			outaged.Branches[k].Out = true
			sol, err := r.disp.Solve(gctx, outaged, formulationID)
			cases[k].Solution = sol
			cases[k].Err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return base, cases, err
	}
	return base, cases, nil
}

// screen drops tripping branch k when the projected post-outage flows stay
// under margin·rate on every monitored branch.
func (r *Runner) screen(net *network.Network, base *opf.Solution, lodf *mat.Dense, k int) bool {
	if r.ScreenMargin <= 0 {
		return false
	}
	fk := base.BranchFlowP[net.Branches[k].Name]
	for l, br := range net.Branches {
		if l == k || br.Out || br.RateMVA <= 0 {
			continue
		}
		post := base.BranchFlowP[br.Name] + lodf.At(l, k)*fk
		if math.Abs(post) >= r.ScreenMargin*br.RateMVA {
			return false
		}
	}
	return true
}
