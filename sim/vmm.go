package sim

import (
	"sort"

	"github.com/samber/lo"
)

// Capacity is the outcome of a three-way hypervisor capacity check.
type Capacity struct {
	CPU bool
	RAM bool
	GPU bool
}

// All reports whether every dimension fits.
func (c Capacity) All() bool {
	return c.CPU && c.RAM && c.GPU
}

// VMM is the hypervisor owned by a physical host.
type VMM interface {
	// HasCapacity checks each resource dimension for vm without mutating
	// state.
	HasCapacity(vm *VM) Capacity
	// Allocate admits each VM that fits, turning it ON. The result vector
	// parallels vms.
	Allocate(vms []*VM) []bool
	// Deallocate releases each hosted VM, turning it OFF. Unknown guests
	// yield false.
	Deallocate(vms []*VM) []bool
	// Resume dispatches duration ticks of CPU to every powered-on guest.
	Resume(duration int64)
	// Idles returns guests whose OS has no running workloads.
	Idles() []*VM
	// Guests returns the hosted VMs in allocation order.
	Guests() []*VM
}

// gpuAllocation records which physical GPU and which of its memory blocks a
// guest holds.
type gpuAllocation struct {
	gpu    int
	blocks []int
}

// SpaceSharedVMM partitions host cores, RAM and GPU memory blocks exclusively
// among guests. Cores and blocks are handed out lowest-index-first so
// placements are reproducible.
type SpaceSharedVMM struct {
	env  *Env
	host *PM

	guests    []*VM
	freeCores []int
	vmCores   map[*VM][]int
	freeRAM   int
	freeGPU   []map[int]struct{}
	vmGPU     map[*VM]gpuAllocation
}

// NewSpaceSharedVMM returns a hypervisor with the full host capacity free.
// Satisfies VMMFactory.
func NewSpaceSharedVMM(env *Env, host *PM) VMM {
	v := &SpaceSharedVMM{
		env:     env,
		host:    host,
		vmCores: make(map[*VM][]int),
		freeRAM: host.RAM,
		vmGPU:   make(map[*VM]gpuAllocation),
	}
	v.freeCores = lo.Range(len(host.CPU))
	for _, gpu := range host.GPUs {
		free := make(map[int]struct{}, gpu.Blocks)
		for block := 0; block < gpu.Blocks; block++ {
			free[block] = struct{}{}
		}
		v.freeGPU = append(v.freeGPU, free)
	}
	return v
}

func (v *SpaceSharedVMM) HasCapacity(vm *VM) Capacity {
	return Capacity{
		CPU: len(v.freeCores) >= vm.CPU,
		RAM: v.freeRAM >= vm.RAM,
		GPU: vm.GPU == nil || lo.SomeBy(v.freeGPU, func(free map[int]struct{}) bool {
			return len(findGPUBlocks(*vm.GPU, free)) > 0
		}),
	}
}

func (v *SpaceSharedVMM) Allocate(vms []*VM) []bool {
	results := make([]bool, 0, len(vms))
	for _, vm := range vms {
		if !v.HasCapacity(vm).All() {
			results = append(results, false)
			continue
		}
		v.vmCores[vm] = append([]int(nil), v.freeCores[:vm.CPU]...)
		v.freeCores = append([]int(nil), v.freeCores[vm.CPU:]...)
		v.freeRAM -= vm.RAM
		if vm.GPU != nil {
			for gpuIdx, free := range v.freeGPU {
				ranges := findGPUBlocks(*vm.GPU, free)
				if len(ranges) == 0 {
					continue
				}
				blocks := ranges[0]
				for _, block := range blocks {
					delete(free, block)
				}
				v.vmGPU[vm] = gpuAllocation{gpu: gpuIdx, blocks: blocks}
				break
			}
		}
		v.guests = append(v.guests, vm)
		results = append(results, true)
		vm.TurnOn()
	}
	return results
}

func (v *SpaceSharedVMM) Deallocate(vms []*VM) []bool {
	results := make([]bool, 0, len(vms))
	for _, vm := range vms {
		if !lo.Contains(v.guests, vm) {
			results = append(results, false)
			continue
		}
		v.freeCores = append(v.freeCores, v.vmCores[vm]...)
		sort.Ints(v.freeCores)
		delete(v.vmCores, vm)
		v.freeRAM += vm.RAM
		if vm.GPU != nil {
			alloc := v.vmGPU[vm]
			for _, block := range alloc.blocks {
				v.freeGPU[alloc.gpu][block] = struct{}{}
			}
			delete(v.vmGPU, vm)
		}
		v.guests = lo.Without(v.guests, vm)
		results = append(results, true)
		vm.TurnOff()
	}
	return results
}

// Resume dispatches to each powered-on guest's OS with the frequency vector
// of the host cores that guest holds.
func (v *SpaceSharedVMM) Resume(duration int64) {
	for _, vm := range v.guests {
		if !vm.IsOn() {
			continue
		}
		cores := lo.Map(v.vmCores[vm], func(core int, _ int) int {
			return v.host.CPU[core]
		})
		vm.OS.Resume(cores, duration)
	}
}

func (v *SpaceSharedVMM) Idles() []*VM {
	return lo.Filter(v.guests, func(vm *VM, _ int) bool {
		return vm.OS.Idle()
	})
}

func (v *SpaceSharedVMM) Guests() []*VM {
	return append([]*VM(nil), v.guests...)
}

// findGPUBlocks returns every contiguous block range of the profile's size
// within the free set, ordered by starting block.
func findGPUBlocks(profile GPUProfile, free map[int]struct{}) [][]int {
	starts := lo.Keys(free)
	sort.Ints(starts)

	var ranges [][]int
	for _, start := range starts {
		blocks := make([]int, 0, profile.Blocks)
		for block := start; block < start+profile.Blocks; block++ {
			if _, ok := free[block]; !ok {
				break
			}
			blocks = append(blocks, block)
		}
		if len(blocks) == profile.Blocks {
			ranges = append(ranges, blocks)
		}
	}
	return ranges
}
