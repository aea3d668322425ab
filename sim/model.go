package sim

// GPUProfile identifies a GPU slice as (compute units, memory blocks).
type GPUProfile struct {
	Units  int
	Blocks int
}

// VMState is the power state of a virtual machine.
type VMState string

const (
	VMStateOn  VMState = "ON"
	VMStateOff VMState = "OFF"
)

// OSFactory builds the OS variant owned by a VM.
type OSFactory func(env *Env, vm *VM) OS

// VM is a guest machine: a core-count/RAM/GPU request plus an owned OS.
// VMs start OFF; the hypervisor turns them ON at allocation and OFF at
// deallocation, which also resets the OS.
type VM struct {
	Name string
	CPU  int
	RAM  int
	GPU  *GPUProfile
	OS   OS

	state VMState
}

// NewVM creates a VM in the OFF state with the OS produced by newOS.
func NewVM(env *Env, name string, cpu, ram int, gpu *GPUProfile, newOS OSFactory) *VM {
	vm := &VM{
		Name:  name,
		CPU:   cpu,
		RAM:   ram,
		GPU:   gpu,
		state: VMStateOff,
	}
	vm.OS = newOS(env, vm)
	return vm
}

// TurnOn marks the VM running.
func (vm *VM) TurnOn() *VM {
	vm.state = VMStateOn
	return vm
}

// TurnOff powers the VM down and resets its OS to a clean state.
func (vm *VM) TurnOff() *VM {
	vm.state = VMStateOff
	vm.OS.Restart()
	return vm
}

func (vm *VM) IsOn() bool  { return vm.state == VMStateOn }
func (vm *VM) IsOff() bool { return !vm.IsOn() }

// VMMFactory builds the hypervisor variant owned by a PM.
type VMMFactory func(env *Env, host *PM) VMM

// PM is a physical host: a per-core frequency vector, RAM, zero or more
// GPUs (each a block capacity), and an owned hypervisor.
type PM struct {
	Name string
	CPU  []int
	RAM  int
	GPUs []GPUProfile
	VMM  VMM
}

// NewPM creates a host with the hypervisor produced by newVMM.
func NewPM(env *Env, name string, cpu []int, ram int, gpus []GPUProfile, newVMM VMMFactory) *PM {
	pm := &PM{
		Name: name,
		CPU:  cpu,
		RAM:  ram,
		GPUs: gpus,
	}
	pm.VMM = newVMM(env, pm)
	return pm
}

// VMPFactory builds the placement policy owned by a data center.
type VMPFactory func(env *Env, dc *DataCenter) VMP

// DataCenter is an ordered list of hosts behind one placement policy.
// Host order is the first-fit scan order.
type DataCenter struct {
	Name  string
	Hosts []*PM
	VMP   VMP
}

// NewDataCenter creates a data center with the placement policy produced by
// newVMP.
func NewDataCenter(env *Env, name string, hosts []*PM, newVMP VMPFactory) *DataCenter {
	dc := &DataCenter{
		Name:  name,
		Hosts: hosts,
	}
	dc.VMP = newVMP(env, dc)
	return dc
}

// Deployment names a replica set of containers. Replicas is the desired
// count; the control plane converges live replica groups toward it.
type Deployment struct {
	Name           string
	ContainerSpecs []ContainerSpec
	Replicas       int
}

// Request is a timestamped allocation demand for one VM. Required rejections
// abort the simulation; Ignored requests are excluded from acceptance
// statistics. The optional callbacks fire on placement outcome, and Execute
// fires once the whole arrival group has been processed.
type Request struct {
	Arrival  int64
	VM       *VM
	Required bool
	Ignored  bool

	OnSuccess func()
	OnFailure func()
	Execute   func()
}

// User is the synthetic request source driving a simulation.
type User struct {
	Name     string
	Requests []*Request
}
