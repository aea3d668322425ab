package sim

// OS dispatches a VM's CPU cycles across its scheduled workloads.
type OS interface {
	// Schedule appends workloads to the running list. The parallel result
	// vector mirrors VMM/VMP allocation results; admission never fails here.
	Schedule(apps []Workload) []bool
	// Terminate moves workloads from running to stopped.
	Terminate(apps []Workload)
	// Restart clears both lists; invoked when the owning VM powers off.
	Restart()
	// Resume spends cores[i] × duration cycles across the running workloads
	// and returns the cycles consumed per core.
	Resume(cores []int, duration int64) []int
	// Running returns the live workload list in schedule order.
	Running() []Workload
	// Stopped drains and returns the workloads terminated since the last
	// call.
	Stopped() []Workload
	// Idle reports an empty running list.
	Idle() bool
}

// ShareFunc computes one app's per-core allotment out of the remaining cycle
// budget, given the dispatch duration and the number of apps not yet served
// this pass.
type ShareFunc func(remaining int, duration int64, apps int) int

// DurationWeightedShare is the historical dispatch formula: it weights the
// remaining budget by the dispatch duration a second time before dividing
// among the apps left. With a clock resolution of 1 the factor is neutral.
func DurationWeightedShare(remaining int, duration int64, apps int) int {
	return remaining * int(duration) / apps
}

// EvenShare divides the remaining budget evenly among the apps left.
func EvenShare(remaining int, duration int64, apps int) int {
	return remaining / apps
}

// TimeSharedOS divides the per-core cycle budget across running workloads in
// schedule order, publishing <kind>.start on first dispatch and <kind>.stop
// on termination.
type TimeSharedOS struct {
	env *Env
	vm  *VM

	// Share controls the per-app allotment. Defaults to
	// DurationWeightedShare.
	Share ShareFunc

	running []Workload
	stopped []Workload
}

// NewTimeSharedOS returns a time-shared OS for vm. Satisfies OSFactory.
func NewTimeSharedOS(env *Env, vm *VM) OS {
	return &TimeSharedOS{
		env:   env,
		vm:    vm,
		Share: DurationWeightedShare,
	}
}

func (o *TimeSharedOS) Schedule(apps []Workload) []bool {
	o.running = append(o.running, apps...)
	results := make([]bool, len(apps))
	for i := range results {
		results[i] = true
	}
	return results
}

func (o *TimeSharedOS) Terminate(apps []Workload) {
	for _, app := range apps {
		for i, running := range o.running {
			if running == app {
				o.running = append(o.running[:i], o.running[i+1:]...)
				o.stopped = append(o.stopped, app)
				break
			}
		}
	}
}

func (o *TimeSharedOS) Restart() {
	o.running = nil
	o.stopped = nil
}

// Resume gives every running workload its share of the cycle budget, in
// schedule order. Each app's allotment is recomputed from the budget left
// after its predecessors consumed theirs.
func (o *TimeSharedOS) Resume(cores []int, duration int64) []int {
	var stoppedNow []Workload

	remained := make([]int, len(cores))
	for i, freq := range cores {
		remained[i] = freq * int(duration)
	}

	apps := len(o.running)
	for _, app := range o.running {
		if !app.Started() {
			o.env.Bus.Publish(app.Kind()+".start", o.env.Clock.Now(), o.vm, app)
		}

		share := make([]int, len(remained))
		for i, rc := range remained {
			share[i] = o.Share(rc, duration, apps)
		}
		consumed := app.Resume(share)
		for i := range remained {
			remained[i] -= consumed[i]
		}

		if app.Stopped() {
			stoppedNow = append(stoppedNow, app)
		}

		apps--
		if apps == 0 {
			break
		}
	}

	for _, app := range stoppedNow {
		o.Terminate([]Workload{app})
		o.env.Bus.Publish(app.Kind()+".stop", o.env.Clock.Now(), o.vm, app)
	}

	out := make([]int, len(cores))
	for i, freq := range cores {
		out[i] = freq*int(duration) - remained[i]
	}
	return out
}

func (o *TimeSharedOS) Running() []Workload {
	return append([]Workload(nil), o.running...)
}

func (o *TimeSharedOS) Stopped() []Workload {
	finished := o.stopped
	o.stopped = nil
	return finished
}

func (o *TimeSharedOS) Idle() bool {
	return len(o.running) == 0
}
