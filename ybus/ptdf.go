package ybus

import (
	"fmt"
	"math"

	"github.com/gridfold/opf/network"
	"gonum.org/v1/gonum/mat"
)

// PTDF holds power transfer distribution factors: row l, column i is the
// sensitivity of the flow on in-service branch l to an injection at bus i
// (withdrawn at the reference bus). The reference column is zero.
type PTDF struct {
	// Factors is nbBranch × nbBus; out-of-service branches get a zero row.
	Factors *mat.Dense
	Ref     int
}

// NewPTDF computes the distribution factors of net from the reduced B'
// matrix. The reference bus must exist and the reduced matrix must be
// non-singular (islanded networks fail here).
func NewPTDF(net *network.Network) (*PTDF, error) {
	ref, ok := net.ReferenceBus()
	if !ok {
		return nil, fmt.Errorf("network %s has no reference bus", net.Name)
	}
	n := len(net.Buses)
	bp, err := Susceptance(net)
	if err != nil {
		return nil, err
	}

	// Reduced B' with the reference row/column removed.
	red := mat.NewDense(n-1, n-1, nil)
	for i, ri := 0, 0; i < n; i++ {
		if i == ref {
			continue
		}
		for j, rj := 0, 0; j < n; j++ {
			if j == ref {
				continue
			}
			red.Set(ri, rj, bp.At(i, j))
			rj++
		}
		ri++
	}

	var inv mat.Dense
	if err := inv.Inverse(red); err != nil {
		return nil, fmt.Errorf("susceptance matrix is singular (islanded network?): %w", err)
	}

	// X expands inv back to full bus dimension with a zero ref row/column,
	// so theta = X * p for injections p.
	x := mat.NewDense(n, n, nil)
	for i, ri := 0, 0; i < n; i++ {
		if i == ref {
			continue
		}
		for j, rj := 0, 0; j < n; j++ {
			if j == ref {
				continue
			}
			x.Set(i, j, inv.At(ri, rj))
			rj++
		}
		ri++
	}

	busIdx := net.BusIndexMap()
	f := mat.NewDense(len(net.Branches), n, nil)
	for l, br := range net.Branches {
		if br.Out {
			continue
		}
		b, err := br.Susceptance()
		if err != nil {
			return nil, err
		}
		fi, ti := busIdx[br.From], busIdx[br.To]
		for i := 0; i < n; i++ {
			f.Set(l, i, b*(x.At(fi, i)-x.At(ti, i)))
		}
	}
	return &PTDF{Factors: f, Ref: ref}, nil
}

// LODF returns line outage distribution factors: entry (l, k) is the fraction
// of branch k's pre-outage flow that shifts onto branch l when k trips.
// Radial branches (whose outage islands the network) get a NaN column.
func (p *PTDF) LODF(net *network.Network) *mat.Dense {
	busIdx := net.BusIndexMap()
	nb := len(net.Branches)
	out := mat.NewDense(nb, nb, nil)

	for k, bk := range net.Branches {
		if bk.Out {
			continue
		}
		fk, tk := busIdx[bk.From], busIdx[bk.To]
		// Self-sensitivity of branch k to a unit transfer across itself.
		denom := 1 - (p.Factors.At(k, fk) - p.Factors.At(k, tk))
		for l := 0; l < nb; l++ {
			if l == k {
				out.Set(l, k, -1)
				continue
			}
			num := p.Factors.At(l, fk) - p.Factors.At(l, tk)
			if math.Abs(denom) < 1e-9 {
				out.Set(l, k, math.NaN())
				continue
			}
			out.Set(l, k, num/denom)
		}
	}
	return out
}

// IslandingOutage reports whether tripping branch k would split the
// network: a radial branch carries its full self-transfer, leaving no
// alternative path.
func (p *PTDF) IslandingOutage(net *network.Network, k int) bool {
	br := net.Branches[k]
	if br.Out {
		return false
	}
	busIdx := net.BusIndexMap()
	fk, tk := busIdx[br.From], busIdx[br.To]
	denom := 1 - (p.Factors.At(k, fk) - p.Factors.At(k, tk))
	return math.Abs(denom) < 1e-9
}

// LossFactors returns per-bus marginal loss factors for the given branch
// flows (pu): λ_i = 1 + ∂P_loss/∂P_i with losses r·f² distributed through
// the transfer factors. Flows are indexed in network branch order.
func (p *PTDF) LossFactors(net *network.Network, flows []float64) []float64 {
	n := len(net.Buses)
	lambda := make([]float64, n)
	for i := range lambda {
		lambda[i] = 1.0
	}
	for l, br := range net.Branches {
		if br.Out || l >= len(flows) {
			continue
		}
		for i := 0; i < n; i++ {
			lambda[i] += 2 * br.R * flows[l] * p.Factors.At(l, i)
		}
	}
	return lambda
}

// BranchLosses estimates series losses per branch (pu) for the given flows
// using the DC approximation P_loss ≈ r·f². Returns per-branch losses and
// the total.
func BranchLosses(net *network.Network, flows []float64) (perBranch []float64, total float64) {
	perBranch = make([]float64, len(net.Branches))
	for l, br := range net.Branches {
		if br.Out || l >= len(flows) {
			continue
		}
		loss := br.R * flows[l] * flows[l]
		perBranch[l] = loss
		total += loss
	}
	return perBranch, total
}
