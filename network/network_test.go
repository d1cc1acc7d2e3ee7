package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallNet() *Network {
	n := New("small")
	n.AddBus(Bus{Name: "b1", Type: Reference}).
		AddBus(Bus{Name: "b2", Type: LoadBus}).
		AddBranch(Branch{Name: "l12", From: "b1", To: "b2", R: 0.01, X: 0.1}).
		AddGenerator(Generator{Name: "g1", Bus: "b1", PMax: 100, Cost: LinearCost(0, 10)}).
		AddLoad(Load{Name: "d2", Bus: "b2", P: 50, Q: 10})
	return n
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	require.NoError(t, smallNet().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Network)
		want   string
	}{
		{"no buses", func(n *Network) { n.Buses = nil }, "no buses"},
		{"no generators", func(n *Network) { n.Generators = nil }, "no generators"},
		{"duplicate bus", func(n *Network) { n.AddBus(Bus{Name: "b1"}) }, "duplicate bus"},
		{"duplicate branch", func(n *Network) {
			n.AddBranch(Branch{Name: "l12", From: "b1", To: "b2", X: 0.2})
		}, "duplicate branch"},
		{"dangling branch", func(n *Network) {
			n.AddBranch(Branch{Name: "l19", From: "b1", To: "b9", X: 0.2})
		}, "unknown bus"},
		{"dangling generator", func(n *Network) {
			n.AddGenerator(Generator{Name: "g9", Bus: "b9"})
		}, "unknown bus"},
		{"dangling load", func(n *Network) {
			n.AddLoad(Load{Name: "d9", Bus: "b9"})
		}, "unknown bus"},
		{"inverted limits", func(n *Network) {
			n.Generators[0].PMin = 50
			n.Generators[0].PMax = 10
		}, "PMax < PMin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := smallNet()
			tc.mutate(n)
			err := n.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	n := smallNet()
	c := n.Clone()
	c.Branches[0].Out = true
	c.Generators[0].Cost.Coeffs[1] = 99
	c.Loads[0].P = 1

	assert.False(t, n.Branches[0].Out)
	assert.Equal(t, 10.0, n.Generators[0].Cost.Coeffs[1])
	assert.Equal(t, 50.0, n.Loads[0].P)
}

func TestAggregates(t *testing.T) {
	n := smallNet()
	n.AddLoad(Load{Name: "d2b", Bus: "b2", P: 25, Q: 5})

	p, q := n.TotalLoad()
	assert.Equal(t, 75.0, p)
	assert.Equal(t, 15.0, q)

	p, q = n.LoadAt("b2")
	assert.Equal(t, 75.0, p)
	assert.Equal(t, 15.0, q)

	p, _ = n.LoadAt("b1")
	assert.Zero(t, p)
}

func TestReferenceBus(t *testing.T) {
	n := smallNet()
	ref, ok := n.ReferenceBus()
	require.True(t, ok)
	assert.Equal(t, 0, ref)

	n.Buses[0].Type = LoadBus
	_, ok = n.ReferenceBus()
	assert.False(t, ok)
}

func TestBranchDefaults(t *testing.T) {
	br := Branch{Name: "l", X: 0.1}
	assert.Equal(t, 1.0, br.Tap())

	b, err := br.Susceptance()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, b, 1e-12)

	br.TapRatio = 2.0
	b, err = br.Susceptance()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, b, 1e-12)

	_, err = Branch{Name: "z"}.Susceptance()
	assert.Error(t, err)
}

func TestVoltageLimitDefaults(t *testing.T) {
	vmin, vmax := Bus{}.VoltageLimits()
	assert.Equal(t, 0.94, vmin)
	assert.Equal(t, 1.06, vmax)

	vmin, vmax = Bus{VMin: 0.9, VMax: 1.1}.VoltageLimits()
	assert.Equal(t, 0.9, vmin)
	assert.Equal(t, 1.1, vmax)
}

func TestBaseDefaults(t *testing.T) {
	assert.Equal(t, DefaultBaseMVA, New("x").Base())
	n := New("x")
	n.BaseMVA = 50
	assert.Equal(t, 50.0, n.Base())
}
