package sim

import (
	"github.com/samber/lo"

	"github.com/sirupsen/logrus"
)

// NewFractionalGPUControlPlane returns the round-robin control plane with
// fractional GPU accounting: each worker node exposes a 1.0 share when it
// has any GPU, and containers request float shares of it. Satisfies
// ControlPlaneFactory.
func NewFractionalGPUControlPlane(env *Env, c *Controller) ControlPlane {
	return newRoundRobinControlPlane(env, c, &fractionalGPUModel{})
}

// fractionalGPUModel shares one GPU per node as a float in [0, 1].
type fractionalGPUModel struct {
	free map[*VM]float64
}

func (m *fractionalGPUModel) init(node *VM) {
	if m.free == nil {
		m.free = make(map[*VM]float64)
	}
	if node.GPU != nil {
		m.free[node] = 1.0
	} else {
		m.free[node] = 0.0
	}
}

func (m *fractionalGPUModel) fits(node *VM, req *GPURequest) bool {
	return m.free[node] >= shareOf(req)
}

// fitsAll checks the summed shares of a replica group. An aggregate above a
// full device is suspicious and logged, but still goes through the normal
// capacity comparison.
func (m *fractionalGPUModel) fitsAll(node *VM, reqs []*GPURequest) bool {
	total := lo.SumBy(reqs, func(r *GPURequest) float64 { return shareOf(r) })
	if total > 1.0 {
		logrus.Warnf("deployment requests %.2f GPU share on node %s; a replica group cannot exceed 1.0", total, node.Name)
	}
	return m.free[node] >= total
}

func (m *fractionalGPUModel) take(node *VM, req *GPURequest) {
	m.free[node] -= shareOf(req)
}

func (m *fractionalGPUModel) release(node *VM, req *GPURequest) {
	m.free[node] += shareOf(req)
}

func shareOf(req *GPURequest) float64 {
	if req == nil {
		return 0
	}
	return req.Share
}
