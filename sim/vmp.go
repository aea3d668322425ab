package sim

// VMP places virtual machines onto the data center's hosts.
type VMP interface {
	// Allocate places each VM on some host, or records false when no host
	// fits. The result vector parallels vms.
	Allocate(vms []*VM) []bool
	// Deallocate releases each placed VM from its host. Unknown VMs yield
	// false.
	Deallocate(vms []*VM) []bool
	// Resume dispatches duration ticks to every host's hypervisor.
	Resume(duration int64)
	// Stopped returns the VMs the policy considers finished; idle guests
	// qualify.
	Stopped() []*VM
	// Empty reports whether no VM is currently placed.
	Empty() bool
	// HostOf looks up the host a VM is placed on.
	HostOf(vm *VM) (*PM, bool)
}

// FirstFitVMP scans hosts in declaration order and places each VM on the
// first host whose hypervisor reports capacity on all three dimensions.
type FirstFitVMP struct {
	env  *Env
	dc   *DataCenter
	vmPM map[*VM]*PM
}

// NewFirstFitVMP returns a first-fit placement policy. Satisfies VMPFactory.
func NewFirstFitVMP(env *Env, dc *DataCenter) VMP {
	return &FirstFitVMP{
		env:  env,
		dc:   dc,
		vmPM: make(map[*VM]*PM),
	}
}

func (p *FirstFitVMP) Allocate(vms []*VM) []bool {
	results := make([]bool, 0, len(vms))
	for _, vm := range vms {
		placed := false
		for _, host := range p.dc.Hosts {
			if !host.VMM.HasCapacity(vm).All() {
				continue
			}
			results = append(results, host.VMM.Allocate([]*VM{vm})...)
			p.vmPM[vm] = host
			p.env.Bus.Publish("vm.allocate", p.env.Clock.Now(), host, vm)
			placed = true
			break
		}
		if !placed {
			results = append(results, false)
		}
	}
	return results
}

func (p *FirstFitVMP) Deallocate(vms []*VM) []bool {
	results := make([]bool, 0, len(vms))
	for _, vm := range vms {
		host, ok := p.vmPM[vm]
		if !ok {
			results = append(results, false)
			continue
		}
		results = append(results, host.VMM.Deallocate([]*VM{vm})...)
		delete(p.vmPM, vm)
		p.env.Bus.Publish("vm.deallocate", p.env.Clock.Now(), host, vm)
	}
	return results
}

func (p *FirstFitVMP) Resume(duration int64) {
	for _, host := range p.dc.Hosts {
		host.VMM.Resume(duration)
	}
}

// Stopped treats idle guests as finished; other criteria could qualify here.
func (p *FirstFitVMP) Stopped() []*VM {
	var stopped []*VM
	for _, host := range p.dc.Hosts {
		stopped = append(stopped, host.VMM.Idles()...)
	}
	return stopped
}

func (p *FirstFitVMP) Empty() bool {
	return len(p.vmPM) == 0
}

func (p *FirstFitVMP) HostOf(vm *VM) (*PM, bool) {
	host, ok := p.vmPM[vm]
	return host, ok
}
