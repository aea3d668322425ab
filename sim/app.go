package sim

// Workload is the unit of execution an OS dispatches cycles to. App is the
// base implementation; Container and Controller embed it and refine Kind,
// Resume and Stopped.
type Workload interface {
	// Name identifies the workload in logs and events.
	Name() string
	// Kind is the concrete variant name, lowercased; lifecycle topics are
	// derived from it ("app.start", "container.stop", ...).
	Kind() string
	// Resume spends up to budget[i] cycles on core i and returns the cycles
	// actually consumed per core.
	Resume(budget []int) []int
	// Restart restores every thread to its full length.
	Restart()
	// Stopped reports whether the workload has expired or exhausted all
	// thread lengths.
	Stopped() bool
	// Started reports whether Resume has been invoked at least once; the OS
	// uses it to emit the start event exactly once.
	Started() bool
}

// AppConfig describes an App. Expiration, when set, is an absolute virtual
// time past which the app counts as stopped regardless of remaining cycles.
type AppConfig struct {
	Name       string
	Length     []int
	Expiration *int64
}

// App is a workload with one remaining-cycle counter per thread. Threads are
// drained round-robin by Resume; only the owning OS mutates an App.
type App struct {
	env        *Env
	name       string
	length     []int
	expiration *int64
	remaining  []int
	started    bool
}

// NewApp creates an App with all threads at full length.
func NewApp(env *Env, cfg AppConfig) *App {
	a := &App{
		env:        env,
		name:       cfg.Name,
		length:     cfg.Length,
		expiration: cfg.Expiration,
	}
	a.Restart()
	return a
}

func (a *App) Name() string { return a.name }

func (a *App) Kind() string { return "app" }

// Length returns the declared cycles per thread.
func (a *App) Length() []int { return a.length }

// Remaining returns a copy of the per-thread remaining cycles.
func (a *App) Remaining() []int {
	out := make([]int, len(a.remaining))
	copy(out, a.remaining)
	return out
}

func (a *App) Started() bool { return a.started }

// Restart restores remaining = length.
func (a *App) Restart() {
	a.remaining = make([]int, len(a.length))
	copy(a.remaining, a.length)
}

// Resume walks cores in order and spends each core's budget on the threads
// round-robin, stopping when the app is stopped or the budget is exhausted.
// Returns the cycles consumed per core.
func (a *App) Resume(budget []int) []int {
	a.started = true

	consumed := make([]int, len(budget))
	left := make([]int, len(budget))
	copy(left, budget)

	threads := len(a.remaining)
	thread := 0
	for core := range left {
		for left[core] > 0 && !a.Stopped() {
			spend := min(left[core], a.remaining[thread])
			a.remaining[thread] -= spend
			left[core] -= spend
			consumed[core] += spend
			thread = (thread + 1) % threads
		}
	}
	return consumed
}

// Stopped reports expiration or full exhaustion of every thread.
func (a *App) Stopped() bool {
	if a.expiration != nil && a.env.Clock.Now() >= *a.expiration {
		return true
	}
	for _, r := range a.remaining {
		if r > 0 {
			return false
		}
	}
	return true
}

// CPURequest is a container's CPU demand as a (request, limit) pair of core
// fractions. Scheduling reads only the request.
type CPURequest struct {
	Request float64
	Limit   float64
}

// RAMRequest is a container's memory demand as a (request, limit) pair.
type RAMRequest struct {
	Request int
	Limit   int
}

// GPURequest is a container's GPU demand: a discrete device profile for the
// default control plane, or a fractional share for the fractional variant.
// Exactly one of the two is meaningful per scenario.
type GPURequest struct {
	Profile *GPUProfile
	Share   float64
}

// ContainerSpec is the template a Deployment stamps containers from.
type ContainerSpec struct {
	Name       string
	Length     []int
	CPU        CPURequest
	RAM        RAMRequest
	GPU        *GPURequest
	Expiration *int64
}

// Container is an App with resource requests, scheduled by a control plane
// onto a worker node's OS.
type Container struct {
	App
	CPU CPURequest
	RAM RAMRequest
	GPU *GPURequest
}

// NewContainer instantiates a fresh container from a spec.
func NewContainer(env *Env, spec ContainerSpec) *Container {
	return &Container{
		App: *NewApp(env, AppConfig{
			Name:       spec.Name,
			Length:     spec.Length,
			Expiration: spec.Expiration,
		}),
		CPU: spec.CPU,
		RAM: spec.RAM,
		GPU: spec.GPU,
	}
}

func (c *Container) Kind() string { return "container" }

// Controller is the long-running cluster workload: an App whose Resume first
// drives the attached control plane. Constructing a controller schedules a
// synthetic "worker" app on every node so worker VMs stay busy.
type Controller struct {
	App
	Nodes []*VM
	Plane ControlPlane
}

// ControlPlaneFactory builds the control-plane variant for a controller.
type ControlPlaneFactory func(env *Env, c *Controller) ControlPlane

// NewController creates a controller over the given worker nodes and attaches
// the control plane produced by newPlane.
func NewController(env *Env, cfg AppConfig, nodes []*VM, newPlane ControlPlaneFactory) *Controller {
	c := &Controller{
		App:   *NewApp(env, cfg),
		Nodes: nodes,
	}
	for _, node := range nodes {
		node.OS.Schedule([]Workload{NewApp(env, AppConfig{Name: "worker", Length: cfg.Length})})
	}
	c.Plane = newPlane(env, c)
	return c
}

func (c *Controller) Kind() string { return "controller" }

// Resume runs one control-plane management pass, then performs the base
// cycle accounting.
func (c *Controller) Resume(budget []int) []int {
	c.Plane.Manage()
	return c.App.Resume(budget)
}

// Stopped reports the base condition or a stopped control plane.
func (c *Controller) Stopped() bool {
	return c.App.Stopped() || c.Plane.Stopped()
}
