package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulation_SingleVMSingleApp_RunsToCompletion(t *testing.T) {
	// GIVEN one host, one VM with a three-cycle app, one arrival at t=0
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1}, 1024))
	vm := testVM(env, "vm", 1, 512, nil)
	vm.OS.Schedule([]Workload{testApp(env, "a", 3)})
	user := &User{Name: "u", Requests: []*Request{{Arrival: 0, VM: vm}}}
	rec := &recorder{}
	rec.watch(env.Bus, "vm.allocate", "vm.deallocate", "app.start", "app.stop")

	s := NewSimulation(Config{Name: "t"}, env, user, dc)

	// WHEN the simulation runs to completion
	require.NoError(t, s.Run(0))

	// THEN the app ran its three ticks, the VM was released, and the run
	// drained at t=4
	assert.True(t, s.Complete())
	assert.True(t, vm.IsOff())
	assert.True(t, dc.VMP.Empty())
	assert.Equal(t, int64(4), env.Clock.Now())
	assert.Equal(t, 1, rec.count("vm.allocate"))
	assert.Equal(t, 1, rec.count("vm.deallocate"))
	assert.Equal(t, 1, rec.count("app.start"))
	assert.Equal(t, 1, rec.count("app.stop"))

	stats := s.Report(false)
	assert.Equal(t, Stats{Requests: 1, Accepted: 1, Rejected: 0, AcceptRate: 1.0, RejectRate: 0.0}, stats)
}

func TestSimulation_Rejection_TwoOfThreeFit(t *testing.T) {
	// GIVEN a host with two cores and three single-core VM requests at t=0
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1, 1}, 1024))
	var vms []*VM
	var requests []*Request
	for _, name := range []string{"vm1", "vm2", "vm3"} {
		vm := testVM(env, name, 1, 64, nil)
		vm.OS.Schedule([]Workload{testApp(env, name+"-app", 1)})
		vms = append(vms, vm)
		requests = append(requests, &Request{Arrival: 0, VM: vm})
	}
	s := NewSimulation(Config{Name: "t"}, env, &User{Name: "u", Requests: requests}, dc)

	require.NoError(t, s.Run(0))

	stats := s.Report(false)
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 0.67, stats.AcceptRate)
	assert.Equal(t, 0.33, stats.RejectRate)
	assert.True(t, vms[2].IsOff())
}

func TestSimulation_RequiredRejection_IsFatal(t *testing.T) {
	// GIVEN a required request that cannot fit anywhere
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1}, 64))
	vm := testVM(env, "toobig", 2, 64, nil)
	user := &User{Name: "u", Requests: []*Request{{Arrival: 0, VM: vm, Required: true}}}
	s := NewSimulation(Config{Name: "t"}, env, user, dc)

	// WHEN the simulation runs
	err := s.Run(0)

	// THEN it aborts with the typed fatal error naming the VM
	var rejected *RequiredRequestRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "toobig", rejected.VM)
}

func TestSimulation_IgnoredRequests_ExcludedFromStats(t *testing.T) {
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1, 1}, 1024))
	vm1 := testVM(env, "vm1", 1, 64, nil)
	vm1.OS.Schedule([]Workload{testApp(env, "a", 1)})
	vm2 := testVM(env, "vm2", 1, 64, nil)
	vm2.OS.Schedule([]Workload{testApp(env, "b", 1)})
	user := &User{Name: "u", Requests: []*Request{
		{Arrival: 0, VM: vm1},
		{Arrival: 0, VM: vm2, Ignored: true},
	}}
	s := NewSimulation(Config{Name: "t"}, env, user, dc)

	require.NoError(t, s.Run(0))

	// The ignored request was still placed, but never counted.
	stats := s.Report(false)
	assert.Equal(t, Stats{Requests: 1, Accepted: 1, Rejected: 0, AcceptRate: 1.0, RejectRate: 0.0}, stats)
}

func TestSimulation_RequestCallbacks_FireOnOutcome(t *testing.T) {
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1}, 64))
	fits := testVM(env, "fits", 1, 64, nil)
	fits.OS.Schedule([]Workload{testApp(env, "a", 1)})
	rejected := testVM(env, "rejected", 1, 64, nil)

	var succeeded, failed, executed bool
	user := &User{Name: "u", Requests: []*Request{
		{Arrival: 0, VM: fits, OnSuccess: func() { succeeded = true }, Execute: func() { executed = true }},
		{Arrival: 0, VM: rejected, OnFailure: func() { failed = true }},
	}}
	s := NewSimulation(Config{Name: "t"}, env, user, dc)

	require.NoError(t, s.Run(0))

	assert.True(t, succeeded)
	assert.True(t, failed)
	assert.True(t, executed)
}

func TestSimulation_Report_ZeroRequestsYieldsZeroRates(t *testing.T) {
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1}, 64))
	s := NewSimulation(Config{Name: "t"}, env, &User{Name: "u"}, dc)

	require.NoError(t, s.Run(0))

	assert.Equal(t, Stats{}, s.Report(false))
}

func TestSimulation_DurationBound_PausesMidFlight(t *testing.T) {
	// GIVEN a long-running app and a five-tick budget
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1}, 1024))
	vm := testVM(env, "vm", 1, 512, nil)
	vm.OS.Schedule([]Workload{testApp(env, "a", 1000)})
	user := &User{Name: "u", Requests: []*Request{{Arrival: 0, VM: vm}}}
	s := NewSimulation(Config{Name: "t"}, env, user, dc)

	require.NoError(t, s.Run(5))

	// THEN the run paused with the VM still placed
	assert.Equal(t, int64(5), env.Clock.Now())
	assert.False(t, s.Complete())
	assert.True(t, vm.IsOn())
	assert.False(t, dc.VMP.Empty())
}

func TestSimulation_LateArrivals_AllocateAtTheirTime(t *testing.T) {
	// GIVEN two requests for the same single-core host, staggered so the
	// second arrives after the first VM finished and was released
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1}, 64))
	vm1 := testVM(env, "vm1", 1, 64, nil)
	vm1.OS.Schedule([]Workload{testApp(env, "a", 2)})
	vm2 := testVM(env, "vm2", 1, 64, nil)
	vm2.OS.Schedule([]Workload{testApp(env, "b", 2)})
	user := &User{Name: "u", Requests: []*Request{
		{Arrival: 0, VM: vm1},
		{Arrival: 10, VM: vm2},
	}}
	s := NewSimulation(Config{Name: "t"}, env, user, dc)

	require.NoError(t, s.Run(0))

	stats := s.Report(false)
	assert.Equal(t, 2, stats.Accepted)
	assert.Equal(t, 0, stats.Rejected)
}

func TestSimulation_ClusterWorkload_DeploysAndDrainsContainers(t *testing.T) {
	// GIVEN a host running a controller VM and two worker VMs, and a
	// deployment applied by the arrival group's execute callback
	env := NewEnv()
	dc := testDC(env, testHost(env, "pm", []int{1, 1, 1}, 4096))
	ctrlVM := testVM(env, "ctrl-vm", 1, 512, nil)
	worker1 := testVM(env, "worker1", 1, 1024, nil)
	worker2 := testVM(env, "worker2", 1, 1024, nil)

	controller := NewController(env, AppConfig{Name: "controller", Length: []int{100}},
		[]*VM{worker1, worker2}, NewRoundRobinControlPlane)
	ctrlVM.OS.Schedule([]Workload{controller})

	d := &Deployment{
		Name:     "web",
		Replicas: 2,
		ContainerSpecs: []ContainerSpec{
			{Name: "web-c", Length: []int{5}, CPU: CPURequest{Request: 0.5}, RAM: RAMRequest{Request: 256}},
		},
	}

	rec := &recorder{}
	rec.watch(env.Bus, "deployment.run", "deployment.stop", "container.start", "container.stop", "controller.start")

	user := &User{Name: "u", Requests: []*Request{
		{Arrival: 0, VM: ctrlVM, Required: true, Execute: func() { controller.Plane.Apply(d) }},
		{Arrival: 0, VM: worker1, Required: true},
		{Arrival: 0, VM: worker2, Required: true},
	}}
	s := NewSimulation(Config{Name: "cluster"}, env, user, dc)

	// WHEN the cluster runs for a bounded window
	require.NoError(t, s.Run(20))

	// THEN one replica ran per worker, both containers finished, and the
	// deployment wound down
	assert.Equal(t, 1, rec.count("controller.start"))
	assert.Equal(t, 2, rec.count("container.start"))
	assert.Equal(t, 2, rec.count("container.stop"))
	assert.GreaterOrEqual(t, rec.count("deployment.run"), 1)
	assert.Equal(t, 1, rec.count("deployment.stop"))

	plane := controller.Plane.(*RoundRobinControlPlane)
	assert.Empty(t, plane.Replicas(d))
	for _, worker := range []*VM{worker1, worker2} {
		cpu, ram := plane.NodeResources(worker)
		assert.Equal(t, 1.0, cpu)
		assert.Equal(t, 1024, ram)
	}
	assert.Equal(t, 3, s.Report(false).Accepted)
}
