package sim

import (
	"github.com/samber/lo"
)

// ControlPlane converges deployments toward their desired replica counts on
// a controller's worker nodes.
type ControlPlane interface {
	// Apply submits a deployment for scheduling.
	Apply(d *Deployment)
	// Scale records a new desired replica count and queues the deployment
	// for reconciliation.
	Scale(d *Deployment, replicas int)
	// Delete removes up to replicas live replica groups from the tail;
	// replicas ≤ 0 removes all.
	Delete(d *Deployment, replicas int)
	// Manage runs one reconciliation pass: scaled, then degraded, then
	// pending deployments.
	Manage()
	// Stopped reports whether the plane has shut down.
	Stopped() bool
}

// gpuModel abstracts the control plane's GPU accounting; the discrete model
// matches whole device profiles, the fractional model shares of one device.
type gpuModel interface {
	init(node *VM)
	// fits checks a single container's request against the node.
	fits(node *VM, req *GPURequest) bool
	// fitsAll checks a deployment's aggregate requests against the node.
	fitsAll(node *VM, reqs []*GPURequest) bool
	take(node *VM, req *GPURequest)
	release(node *VM, req *GPURequest)
}

// degradedEntry tracks a deployment still short of its desired count.
type degradedEntry struct {
	deployment *Deployment
	remaining  int
}

// RoundRobinControlPlane deploys replica groups across worker nodes
// round-robin, one replica per node per pass. Per-node CPU/RAM ledgers are
// owned here and mutated only through deploy and delete paths.
type RoundRobinControlPlane struct {
	env        *Env
	controller *Controller

	nodeCPU map[*VM]float64
	nodeRAM map[*VM]int
	gpu     gpuModel

	deploymentReplicas  map[*Deployment][][]*Container
	containerDeployment map[*Container]*Deployment
	containerNode       map[*Container]*VM

	pending  []*Deployment
	scaled   []*Deployment
	degraded []degradedEntry
}

// NewRoundRobinControlPlane returns the default control plane with discrete
// GPU profile matching. Satisfies ControlPlaneFactory.
func NewRoundRobinControlPlane(env *Env, c *Controller) ControlPlane {
	return newRoundRobinControlPlane(env, c, &discreteGPUModel{})
}

func newRoundRobinControlPlane(env *Env, c *Controller, gpu gpuModel) *RoundRobinControlPlane {
	p := &RoundRobinControlPlane{
		env:                 env,
		controller:          c,
		nodeCPU:             make(map[*VM]float64),
		nodeRAM:             make(map[*VM]int),
		gpu:                 gpu,
		deploymentReplicas:  make(map[*Deployment][][]*Container),
		containerDeployment: make(map[*Container]*Deployment),
		containerNode:       make(map[*Container]*VM),
	}
	for _, node := range c.Nodes {
		p.nodeCPU[node] = float64(node.CPU)
		p.nodeRAM[node] = node.RAM
		p.gpu.init(node)
	}
	env.Bus.Subscribe("container.stop", p.onContainerStop)
	return p
}

func (p *RoundRobinControlPlane) Apply(d *Deployment) {
	p.pending = append(p.pending, d)
}

func (p *RoundRobinControlPlane) Scale(d *Deployment, replicas int) {
	d.Replicas = replicas
	p.scaled = append(p.scaled, d)
}

// Delete pops replica groups from the tail and deletes their containers.
// Publishes deployment.stop once the last replica is gone.
func (p *RoundRobinControlPlane) Delete(d *Deployment, replicas int) {
	if replicas <= 0 {
		replicas = len(p.deploymentReplicas[d])
	}
	for len(p.deploymentReplicas[d]) > 0 && replicas > 0 {
		groups := p.deploymentReplicas[d]
		group := groups[len(groups)-1]
		p.deploymentReplicas[d] = groups[:len(groups)-1]
		for _, c := range group {
			p.deleteContainer(nil, c)
		}
		replicas--
	}
	if len(p.deploymentReplicas[d]) == 0 {
		delete(p.deploymentReplicas, d)
		p.env.Bus.Publish("deployment.stop", p.env.Clock.Now(), p.controller, d)
	}
}

// Manage reconciles in a fixed order: scaled first, then degraded, then
// pending. Invoked once per simulation step by the owning controller.
func (p *RoundRobinControlPlane) Manage() {
	p.manageScaled()
	p.manageDegraded()
	p.managePending()
}

// Stopped is always false; the plane lives as long as the controller app.
func (p *RoundRobinControlPlane) Stopped() bool {
	return false
}

func (p *RoundRobinControlPlane) manageScaled() {
	for n := len(p.scaled); n > 0; n-- {
		d := p.scaled[0]
		p.scaled = p.scaled[1:]

		required := d.Replicas - len(p.deploymentReplicas[d])
		switch {
		case required < 0:
			p.Delete(d, -required)
			p.env.Bus.Publish("deployment.scale", p.env.Clock.Now(), p.controller, d, required)
		case required > 0:
			p.degraded = append(p.degraded, degradedEntry{deployment: d, remaining: required})
			p.env.Bus.Publish("deployment.scale", p.env.Clock.Now(), p.controller, d, required)
		default:
			p.env.Bus.Publish("deployment.run", p.env.Clock.Now(), p.controller, d)
		}
	}
}

func (p *RoundRobinControlPlane) manageDegraded() {
	for n := len(p.degraded); n > 0; n-- {
		entry := p.degraded[0]
		p.degraded = p.degraded[1:]

		entry.remaining -= p.deployDeployment(entry.deployment, entry.remaining)
		if entry.remaining > 0 {
			p.degraded = append(p.degraded, entry)
			p.env.Bus.Publish("deployment.degrade", p.env.Clock.Now(), p.controller, entry.deployment, entry.remaining)
		} else {
			p.env.Bus.Publish("deployment.run", p.env.Clock.Now(), p.controller, entry.deployment)
		}
	}
}

func (p *RoundRobinControlPlane) managePending() {
	for n := len(p.pending); n > 0; n-- {
		d := p.pending[0]
		p.pending = p.pending[1:]

		deployed := p.deployDeployment(d, d.Replicas)
		switch {
		case deployed == 0:
			p.pending = append(p.pending, d)
			p.env.Bus.Publish("deployment.pend", p.env.Clock.Now(), p.controller, d)
		case deployed < d.Replicas:
			remaining := d.Replicas - deployed
			p.degraded = append(p.degraded, degradedEntry{deployment: d, remaining: remaining})
			p.env.Bus.Publish("deployment.degrade", p.env.Clock.Now(), p.controller, d, remaining)
		default:
			p.env.Bus.Publish("deployment.run", p.env.Clock.Now(), p.controller, d)
		}
	}
}

// deployDeployment places up to replicas replica groups round-robin across
// powered-on worker nodes, one per node per pass, until the target is met or
// a full pass makes no progress. Returns the number actually placed.
func (p *RoundRobinControlPlane) deployDeployment(d *Deployment, replicas int) int {
	if replicas <= 0 {
		replicas = d.Replicas
	}
	if _, ok := p.deploymentReplicas[d]; !ok {
		p.deploymentReplicas[d] = [][]*Container{}
	}

	deployed := 0
	for {
		progress := deployed
		for _, worker := range p.controller.Nodes {
			if worker.IsOff() {
				continue
			}
			if deployed == replicas {
				return deployed
			}
			if p.deployReplica(d, worker) {
				deployed++
			}
		}
		if progress == deployed {
			break
		}
	}
	return deployed
}

// deployReplica checks the deployment's aggregate demand against the node
// ledger, then instantiates and schedules one container per spec.
func (p *RoundRobinControlPlane) deployReplica(d *Deployment, node *VM) bool {
	cpu, ram, gpus := deploymentResources(d)
	if !p.fits(node, cpu, ram) || !p.gpu.fitsAll(node, gpus) {
		return false
	}

	group := make([]*Container, 0, len(d.ContainerSpecs))
	for _, spec := range d.ContainerSpecs {
		c := NewContainer(p.env, spec)
		p.deployContainer(c, node)
		p.containerNode[c] = node
		p.containerDeployment[c] = d
		group = append(group, c)
	}
	p.deploymentReplicas[d] = append(p.deploymentReplicas[d], group)
	return true
}

// deployContainer deducts the container's requests from the node ledger and
// schedules it onto the node's OS.
func (p *RoundRobinControlPlane) deployContainer(c *Container, node *VM) bool {
	if !p.fits(node, c.CPU.Request, c.RAM.Request) || !p.gpu.fits(node, c.GPU) {
		return false
	}
	p.nodeCPU[node] -= c.CPU.Request
	p.nodeRAM[node] -= c.RAM.Request
	p.gpu.take(node, c.GPU)
	node.OS.Schedule([]Workload{c})
	return true
}

// onContainerStop releases a terminated container's resources. The payload
// is (node, workload) as published by the node's OS; pairs inconsistent with
// the ledger are fatal.
func (p *RoundRobinControlPlane) onContainerStop(args ...any) error {
	node := args[0].(*VM)
	c := args[1].(*Container)
	return p.deleteContainer(node, c)
}

// deleteContainer returns the container's resources to its node and drops
// every reference to it. A nil node is resolved from the ledger (internal
// delete path); a non-nil node must match it.
func (p *RoundRobinControlPlane) deleteContainer(node *VM, c *Container) error {
	tracked, ok := p.containerNode[c]
	if node == nil {
		node = tracked
	}
	if !ok || tracked != node {
		name := ""
		if node != nil {
			name = node.Name
		}
		return &ContainerNodeMismatchError{Container: c.Name(), Node: name}
	}

	p.nodeCPU[node] += c.CPU.Request
	p.nodeRAM[node] += c.RAM.Request
	p.gpu.release(node, c.GPU)

	p.removeContainerReferences(c)
	return nil
}

// removeContainerReferences unlinks a container from its deployment, node
// and replica group, publishing deployment.stop when the last replica of a
// deployment disappears.
func (p *RoundRobinControlPlane) removeContainerReferences(c *Container) {
	d := p.containerDeployment[c]
	delete(p.containerDeployment, c)
	delete(p.containerNode, c)

	groups := p.deploymentReplicas[d]
	for i, group := range groups {
		idx := lo.IndexOf(group, c)
		if idx < 0 {
			continue
		}
		group = append(group[:idx], group[idx+1:]...)
		groups[i] = group
		if len(group) == 0 {
			p.deploymentReplicas[d] = append(groups[:i], groups[i+1:]...)
			if len(p.deploymentReplicas[d]) == 0 {
				delete(p.deploymentReplicas, d)
				p.env.Bus.Publish("deployment.stop", p.env.Clock.Now(), p.controller, d)
			}
		}
		break
	}
}

func (p *RoundRobinControlPlane) fits(node *VM, cpu float64, ram int) bool {
	return p.nodeCPU[node] >= cpu && p.nodeRAM[node] >= ram
}

// Replicas returns the live replica groups of a deployment.
func (p *RoundRobinControlPlane) Replicas(d *Deployment) [][]*Container {
	groups := make([][]*Container, 0, len(p.deploymentReplicas[d]))
	for _, group := range p.deploymentReplicas[d] {
		groups = append(groups, append([]*Container(nil), group...))
	}
	return groups
}

// NodeResources reports the free CPU and RAM on a worker node's ledger.
func (p *RoundRobinControlPlane) NodeResources(node *VM) (float64, int) {
	return p.nodeCPU[node], p.nodeRAM[node]
}

// deploymentResources aggregates the requests of every container spec.
func deploymentResources(d *Deployment) (float64, int, []*GPURequest) {
	cpu := lo.SumBy(d.ContainerSpecs, func(s ContainerSpec) float64 { return s.CPU.Request })
	ram := lo.SumBy(d.ContainerSpecs, func(s ContainerSpec) int { return s.RAM.Request })
	gpus := lo.Map(d.ContainerSpecs, func(s ContainerSpec, _ int) *GPURequest { return s.GPU })
	return cpu, ram, gpus
}

// discreteGPUModel matches whole device profiles. A node's device state is
// one of: its declared profile (free), absent, or taken by a running
// container, so a node admits at most one GPU-using container at a time.
// The per-container check is request-is-nil or exact profile equality. The
// aggregate check is a literal membership test of the device state in the
// replica group's per-container request list, nil entries included: a taken
// device matches no entry, a free device only matches a group that requests
// its profile, and a device-less node only matches a group with at least one
// GPU-less container.
type discreteGPUModel struct {
	free  map[*VM]*GPUProfile
	taken map[*VM]bool
}

func (m *discreteGPUModel) init(node *VM) {
	if m.free == nil {
		m.free = make(map[*VM]*GPUProfile)
		m.taken = make(map[*VM]bool)
	}
	m.free[node] = node.GPU
	m.taken[node] = false
}

func (m *discreteGPUModel) fits(node *VM, req *GPURequest) bool {
	if req == nil || req.Profile == nil {
		return true
	}
	free := m.free[node]
	return !m.taken[node] && free != nil && *free == *req.Profile
}

func (m *discreteGPUModel) fitsAll(node *VM, reqs []*GPURequest) bool {
	if len(reqs) == 0 {
		return true
	}
	if m.taken[node] {
		return false
	}
	free := m.free[node]
	return lo.SomeBy(reqs, func(r *GPURequest) bool {
		p := profileOf(r)
		if free == nil {
			return p == nil
		}
		return p != nil && *p == *free
	})
}

func (m *discreteGPUModel) take(node *VM, req *GPURequest) {
	if profileOf(req) != nil {
		m.taken[node] = true
	}
}

func (m *discreteGPUModel) release(node *VM, req *GPURequest) {
	if profileOf(req) != nil {
		m.free[node] = req.Profile
		m.taken[node] = false
	}
}

func profileOf(req *GPURequest) *GPUProfile {
	if req == nil {
		return nil
	}
	return req.Profile
}
