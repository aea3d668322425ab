// Package sim provides a discrete-event simulator for a cloud data center:
// physical machines host virtual machines through a space-shared hypervisor,
// guest operating systems time-share CPU cycles among applications, and a
// cluster control plane schedules containerized deployments onto worker VMs.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - clock.go / event.go: virtual time and the topic-based event bus
//   - simulator.go: the driver loop (deliver events, resume VMs, collect idle
//     guests, advance the clock) and request accounting
//   - os.go / vmm.go / vmp.go: the scheduling stack, bottom-up
//
// # Architecture
//
// Entities (App, Container, Controller, VM, PM, DataCenter) are plain state
// in app.go and model.go. Policies are small interfaces with one shipped
// implementation each:
//   - OS: time-shared cycle dispatch across running apps
//   - VMM: space-shared partitioning of cores, RAM and GPU memory blocks
//   - VMP: first-fit placement of VMs onto hosts
//   - ControlPlane: round-robin replica scheduling, with a discrete-profile
//     GPU model (default) and a fractional-share variant
//
// The virtual clock and the event bus are bundled in an Env owned by the
// Simulation; every component receives the Env at construction, so multiple
// simulations can coexist and tests stay reentrant.
//
// All state transitions happen inside Simulation.Step calls; there is no
// real concurrency. "Future" behavior exists only as events with a later
// fire time on the bus.
package sim
