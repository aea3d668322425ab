package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstFitVMP_Allocate_PicksFirstHostWithCapacity(t *testing.T) {
	// GIVEN two identical hosts in declaration order
	env := NewEnv()
	hostA := testHost(env, "A", []int{10}, 10)
	hostB := testHost(env, "B", []int{10}, 10)
	dc := testDC(env, hostA, hostB)
	vm := testVM(env, "vm", 1, 10, nil)

	// WHEN the VM is placed
	assert.Equal(t, []bool{true}, dc.VMP.Allocate([]*VM{vm}))

	// THEN it landed on the first host
	host, ok := dc.VMP.HostOf(vm)
	assert.True(t, ok)
	assert.Same(t, hostA, host)
}

func TestFirstFitVMP_Allocate_FallsThroughToNextHost(t *testing.T) {
	env := NewEnv()
	hostA := testHost(env, "A", []int{10}, 10)
	hostB := testHost(env, "B", []int{10}, 10)
	dc := testDC(env, hostA, hostB)
	vm1 := testVM(env, "vm1", 1, 10, nil)
	vm2 := testVM(env, "vm2", 1, 10, nil)

	assert.Equal(t, []bool{true, true}, dc.VMP.Allocate([]*VM{vm1, vm2}))

	hostOf1, _ := dc.VMP.HostOf(vm1)
	hostOf2, _ := dc.VMP.HostOf(vm2)
	assert.Same(t, hostA, hostOf1)
	assert.Same(t, hostB, hostOf2)
}

func TestFirstFitVMP_Allocate_NoFitRecordsFalse(t *testing.T) {
	env := NewEnv()
	dc := testDC(env, testHost(env, "A", []int{10}, 10))
	big := testVM(env, "big", 2, 10, nil)

	assert.Equal(t, []bool{false}, dc.VMP.Allocate([]*VM{big}))
	_, ok := dc.VMP.HostOf(big)
	assert.False(t, ok)
	assert.True(t, dc.VMP.Empty())
}

func TestFirstFitVMP_PublishesPlacementEvents(t *testing.T) {
	// GIVEN a recorder on the placement topics
	env := NewEnv()
	hostA := testHost(env, "A", []int{10}, 10)
	dc := testDC(env, hostA)
	rec := &recorder{}
	rec.watch(env.Bus, "vm.allocate", "vm.deallocate")
	vm := testVM(env, "vm", 1, 10, nil)

	// WHEN the VM is placed and released
	dc.VMP.Allocate([]*VM{vm})
	dc.VMP.Deallocate([]*VM{vm})
	if err := env.Bus.RunUntil(env.Clock.Now()); err != nil {
		t.Fatalf("RunUntil: %v", err)
	}

	// THEN both events carry (host, vm)
	assert.Equal(t, 1, rec.count("vm.allocate"))
	assert.Equal(t, 1, rec.count("vm.deallocate"))
	ev, _ := rec.last("vm.allocate")
	assert.Same(t, hostA, ev.args[0])
	assert.Same(t, vm, ev.args[1])
}

func TestFirstFitVMP_Deallocate_UnknownVMYieldsFalse(t *testing.T) {
	env := NewEnv()
	dc := testDC(env, testHost(env, "A", []int{10}, 10))
	stranger := testVM(env, "stranger", 1, 10, nil)
	assert.Equal(t, []bool{false}, dc.VMP.Deallocate([]*VM{stranger}))
}

func TestFirstFitVMP_Stopped_CollectsIdleGuests(t *testing.T) {
	env := NewEnv()
	hostA := testHost(env, "A", []int{10, 10}, 20)
	dc := testDC(env, hostA)
	idle := testVM(env, "idle", 1, 10, nil)
	busy := testVM(env, "busy", 1, 10, nil)
	busy.OS.Schedule([]Workload{testApp(env, "a", 100)})
	dc.VMP.Allocate([]*VM{idle, busy})

	assert.Equal(t, []string{"idle"}, vmNames(dc.VMP.Stopped()))
	assert.False(t, dc.VMP.Empty())
}
