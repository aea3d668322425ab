package sim

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ScenarioConfig is the YAML surface for simple simulations: a data center
// of hosts, a set of VMs with pre-scheduled apps, and the user's allocation
// requests. Control-plane scenarios carry callbacks and are built in code.
type ScenarioConfig struct {
	Name            string          `yaml:"name"`
	ClockResolution int64           `yaml:"clock_resolution"`
	Log             bool            `yaml:"log"`
	Hosts           []HostConfig    `yaml:"hosts"`
	VMs             []VMConfig      `yaml:"vms"`
	Requests        []RequestConfig `yaml:"requests"`
}

// HostConfig declares one physical machine.
type HostConfig struct {
	Name  string      `yaml:"name"`
	Cores []int       `yaml:"cores"`
	RAM   int         `yaml:"ram"`
	GPUs  []GPUConfig `yaml:"gpus"`
}

// GPUConfig declares a GPU as (compute units, memory blocks).
type GPUConfig struct {
	Units  int `yaml:"units"`
	Blocks int `yaml:"blocks"`
}

// VMConfig declares one virtual machine and the apps its OS starts with.
type VMConfig struct {
	Name string         `yaml:"name"`
	CPU  int            `yaml:"cpu"`
	RAM  int            `yaml:"ram"`
	GPU  *GPUConfig     `yaml:"gpu"`
	Apps []AppSpecEntry `yaml:"apps"`
}

// AppSpecEntry declares one app scheduled on a VM at build time.
type AppSpecEntry struct {
	Name       string `yaml:"name"`
	Length     []int  `yaml:"length"`
	Expiration *int64 `yaml:"expiration"`
}

// RequestConfig declares one timestamped allocation request.
type RequestConfig struct {
	Arrival  int64  `yaml:"arrival"`
	VM       string `yaml:"vm"`
	Required bool   `yaml:"required"`
	Ignored  bool   `yaml:"ignored"`
}

// LoadScenario parses a scenario YAML file.
func LoadScenario(path string) (*ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var cfg ScenarioConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &cfg, nil
}

// Validate reports every problem with the scenario at once.
func (c *ScenarioConfig) Validate() error {
	var errs error
	if c.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("name is required"))
	}
	if len(c.Hosts) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("at least one host is required"))
	}

	hostNames := map[string]bool{}
	for i, h := range c.Hosts {
		if h.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("hosts[%d]: name is required", i))
		}
		if hostNames[h.Name] {
			errs = multierr.Append(errs, fmt.Errorf("hosts[%d]: duplicate host name %q", i, h.Name))
		}
		hostNames[h.Name] = true
		if len(h.Cores) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("host %q: at least one core is required", h.Name))
		}
		for j, freq := range h.Cores {
			if freq <= 0 {
				errs = multierr.Append(errs, fmt.Errorf("host %q: cores[%d] must be positive", h.Name, j))
			}
		}
		if h.RAM <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("host %q: ram must be positive", h.Name))
		}
		for j, gpu := range h.GPUs {
			if gpu.Blocks <= 0 {
				errs = multierr.Append(errs, fmt.Errorf("host %q: gpus[%d] blocks must be positive", h.Name, j))
			}
		}
	}

	vmNames := map[string]bool{}
	for i, vm := range c.VMs {
		if vm.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("vms[%d]: name is required", i))
		}
		if vmNames[vm.Name] {
			errs = multierr.Append(errs, fmt.Errorf("vms[%d]: duplicate vm name %q", i, vm.Name))
		}
		vmNames[vm.Name] = true
		if vm.CPU <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("vm %q: cpu must be positive", vm.Name))
		}
		if vm.RAM <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("vm %q: ram must be positive", vm.Name))
		}
		for j, app := range vm.Apps {
			if len(app.Length) == 0 {
				errs = multierr.Append(errs, fmt.Errorf("vm %q: apps[%d] needs a length vector", vm.Name, j))
			}
		}
	}

	for i, r := range c.Requests {
		if r.Arrival < 0 {
			errs = multierr.Append(errs, fmt.Errorf("requests[%d]: arrival must be non-negative", i))
		}
		if !vmNames[r.VM] {
			errs = multierr.Append(errs, fmt.Errorf("requests[%d]: unknown vm %q", i, r.VM))
		}
	}
	return errs
}

// Build validates the scenario and assembles a ready-to-run Simulation with
// the default policy stack (time-shared OS, space-shared VMM, first-fit VMP).
func (c *ScenarioConfig) Build() (*Simulation, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	env := NewEnv()

	hosts := make([]*PM, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		gpus := make([]GPUProfile, 0, len(h.GPUs))
		for _, gpu := range h.GPUs {
			gpus = append(gpus, GPUProfile{Units: gpu.Units, Blocks: gpu.Blocks})
		}
		hosts = append(hosts, NewPM(env, h.Name, h.Cores, h.RAM, gpus, NewSpaceSharedVMM))
	}
	dc := NewDataCenter(env, c.Name, hosts, NewFirstFitVMP)

	vms := make(map[string]*VM, len(c.VMs))
	for _, vc := range c.VMs {
		var gpu *GPUProfile
		if vc.GPU != nil {
			gpu = &GPUProfile{Units: vc.GPU.Units, Blocks: vc.GPU.Blocks}
		}
		vm := NewVM(env, vc.Name, vc.CPU, vc.RAM, gpu, NewTimeSharedOS)
		for _, app := range vc.Apps {
			vm.OS.Schedule([]Workload{NewApp(env, AppConfig{
				Name:       app.Name,
				Length:     app.Length,
				Expiration: app.Expiration,
			})})
		}
		vms[vc.Name] = vm
	}

	user := &User{Name: c.Name + "-user"}
	for _, rc := range c.Requests {
		user.Requests = append(user.Requests, &Request{
			Arrival:  rc.Arrival,
			VM:       vms[rc.VM],
			Required: rc.Required,
			Ignored:  rc.Ignored,
		})
	}

	return NewSimulation(Config{
		Name:            c.Name,
		ClockResolution: c.ClockResolution,
		Log:             c.Log,
	}, env, user, dc), nil
}
