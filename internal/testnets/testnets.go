// Package testnets provides the small reference networks shared by the
// engine's tests.
package testnets

import "github.com/gridfold/opf/network"

// TwoBus is a single line feeding a 50 MW load from one generator.
func TwoBus() *network.Network {
	n := network.New("two-bus")
	n.AddBus(network.Bus{Name: "b1", Type: network.Reference, BaseKV: 138}).
		AddBus(network.Bus{Name: "b2", Type: network.LoadBus, BaseKV: 138}).
		AddBranch(network.Branch{Name: "l12", From: "b1", To: "b2", R: 0.01, X: 0.1, RateMVA: 100}).
		AddGenerator(network.Generator{
			Name: "g1", Bus: "b1",
			PMin: 0, PMax: 120, QMin: -60, QMax: 60,
			Cost: network.LinearCost(0, 12),
		}).
		AddLoad(network.Load{Name: "d2", Bus: "b2", P: 50, Q: 10})
	return n
}

// ThreeBus is a meshed three-bus case: a cheap and an expensive generator
// against a 120 MW load, with enough headroom that the cheap unit's limit
// binds at the optimum.
func ThreeBus() *network.Network {
	n := network.New("three-bus")
	n.AddBus(network.Bus{Name: "b1", Type: network.Reference, BaseKV: 230}).
		AddBus(network.Bus{Name: "b2", Type: network.VoltageControlled, BaseKV: 230}).
		AddBus(network.Bus{Name: "b3", Type: network.LoadBus, BaseKV: 230}).
		AddBranch(network.Branch{Name: "l12", From: "b1", To: "b2", R: 0.010, X: 0.10, RateMVA: 200}).
		AddBranch(network.Branch{Name: "l13", From: "b1", To: "b3", R: 0.012, X: 0.08, RateMVA: 200}).
		AddBranch(network.Branch{Name: "l23", From: "b2", To: "b3", R: 0.010, X: 0.05, RateMVA: 200}).
		AddGenerator(network.Generator{
			Name: "g1", Bus: "b1",
			PMin: 0, PMax: 100, QMin: -80, QMax: 80,
			Cost: network.LinearCost(0, 10),
		}).
		AddGenerator(network.Generator{
			Name: "g2", Bus: "b2",
			PMin: 0, PMax: 150, QMin: -100, QMax: 100,
			Cost: network.LinearCost(0, 25),
		}).
		AddLoad(network.Load{Name: "d3", Bus: "b3", P: 120, Q: 40})
	return n
}
