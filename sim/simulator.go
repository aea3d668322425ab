package sim

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Config is the tunable surface of a simulation run.
type Config struct {
	Name string
	// ClockResolution is the virtual-time step width; defaults to 1.
	ClockResolution int64
	// Log enables the human-readable event stream on the sim.log topic.
	Log bool
}

// Stats is the request accounting of one run. Rates are rounded to two
// decimal places; with zero requests both rates are zero.
type Stats struct {
	Requests   int
	Accepted   int
	Rejected   int
	AcceptRate float64
	RejectRate float64
}

// Simulation is the driver: it owns the environment, wires the bus topics,
// feeds user requests in, and steps virtual time until the scenario drains
// or a duration elapses.
type Simulation struct {
	cfg     Config
	env     *Env
	user    *User
	dc      *DataCenter
	tracker *Tracker
}

// NewSimulation wires a driver over a fully-built scenario. The environment
// clock is reset, every engine topic gets its handlers, and the user's
// requests are published grouped by consecutive equal arrival times.
func NewSimulation(cfg Config, env *Env, user *User, dc *DataCenter) *Simulation {
	if cfg.ClockResolution <= 0 {
		cfg.ClockResolution = 1
	}
	s := &Simulation{
		cfg:     cfg,
		env:     env,
		user:    user,
		dc:      dc,
		tracker: NewTracker(),
	}
	env.Clock.Reset()

	for topic, handler := range map[string]Handler{
		"request.arrive": s.handleRequestArrive,
		"request.accept": s.handleRequestAccept,
		"request.reject": s.handleRequestReject,
		"action.execute": s.handleActionExecute,
		"sim.log":        s.handleSimLog,
	} {
		env.Bus.Subscribe(topic, handler)
	}
	s.subscribeLogFormatters()
	s.subscribeMetricObservers()

	for _, group := range groupByArrival(user.Requests) {
		env.Bus.Publish("request.arrive", group[0].Arrival, group)
	}
	return s
}

// Run steps the simulation until completion, or until duration ticks elapse
// when duration > 0. Returns the fatal error of an aborted run, if any.
func (s *Simulation) Run(duration int64) error {
	logrus.Infof("%s@%d> ======== START ========", s.cfg.Name, s.env.Clock.Now())

	start := s.env.Clock.Now()
	elapsed := func() bool {
		return duration > 0 && s.env.Clock.Now() >= start+duration
	}
	for {
		if elapsed() || (duration <= 0 && s.Complete()) {
			break
		}
		if err := s.Step(); err != nil {
			return err
		}
	}

	if elapsed() {
		logrus.Infof("%s@%d> -------- PAUSE --------", s.cfg.Name, s.env.Clock.Now())
	} else {
		logrus.Infof("%s@%d> ======== STOP ========", s.cfg.Name, s.env.Clock.Now())
	}
	return nil
}

// Step performs one virtual-time step: deliver every event due now, resume
// all placed VMs for one resolution, collect and release idle VMs, then
// advance the clock.
func (s *Simulation) Step() error {
	if err := s.env.Bus.RunUntil(s.env.Clock.Now()); err != nil {
		return err
	}

	s.dc.VMP.Resume(s.cfg.ClockResolution)

	if stopped := s.dc.VMP.Stopped(); len(stopped) > 0 {
		s.dc.VMP.Deallocate(stopped)
	}

	s.env.Clock.Advance(s.cfg.ClockResolution)
	return nil
}

// Complete reports the natural end of a run: no events pending, no request
// without an outcome, and no VM still placed.
func (s *Simulation) Complete() bool {
	return s.env.Bus.Empty() && !s.tracker.HasPending() && s.dc.VMP.Empty()
}

// Report computes the run's acceptance statistics, optionally printing them
// in the simulation's log format.
func (s *Simulation) Report(toStdout bool) Stats {
	counts := s.tracker.Stats()
	stats := Stats{
		Requests: counts["requests"],
		Accepted: counts["accepted"],
		Rejected: counts["rejected"],
	}
	if stats.Requests > 0 {
		stats.AcceptRate = round2(float64(stats.Accepted) / float64(stats.Requests))
		stats.RejectRate = round2(1 - stats.AcceptRate)
	}

	if toStdout {
		now := s.env.Clock.Now()
		fmt.Printf("%s@%d> Accept[%d / %d] = %.2f\n", s.cfg.Name, now, stats.Accepted, stats.Requests, stats.AcceptRate)
		fmt.Printf("%s@%d> Reject[%d / %d] = %.2f\n", s.cfg.Name, now, stats.Rejected, stats.Requests, stats.RejectRate)
	}
	return stats
}

// Env exposes the simulation's clock and bus, e.g. for scenario callbacks
// that publish follow-up requests.
func (s *Simulation) Env() *Env {
	return s.env
}

// Tracker exposes the request accounting counters.
func (s *Simulation) Tracker() *Tracker {
	return s.tracker
}

// handleRequestArrive admits one arrival group: counts it, asks placement to
// allocate every requested VM, fires the per-request callbacks, and publishes
// the accept/reject/execute follow-ups at the current time. A rejected
// required request aborts the run.
func (s *Simulation) handleRequestArrive(args ...any) error {
	requests := args[0].([]*Request)
	now := s.env.Clock.Now()

	s.tracker.Record("requests", countEffective(requests))
	for _, r := range requests {
		s.env.Bus.Publish("sim.log", now, "arrive "+r.VM.Name+requestTags(r))
	}

	allocations := s.dc.VMP.Allocate(lo.Map(requests, func(r *Request, _ int) *VM { return r.VM }))

	var accepted, rejected []*Request
	for i, r := range requests {
		if allocations[i] {
			accepted = append(accepted, r)
			if r.OnSuccess != nil {
				r.OnSuccess()
			}
			continue
		}
		rejected = append(rejected, r)
		if r.Required {
			return &RequiredRequestRejectedError{VM: r.VM.Name}
		}
		if r.OnFailure != nil {
			r.OnFailure()
		}
	}

	s.env.Bus.Publish("request.accept", now, accepted)
	s.env.Bus.Publish("request.reject", now, rejected)
	s.env.Bus.Publish("action.execute", now, requests)
	return nil
}

func (s *Simulation) handleRequestAccept(args ...any) error {
	requests := args[0].([]*Request)
	n := countEffective(requests)
	s.tracker.Record("accepted", n)
	requestsTotal.WithLabelValues("accepted").Add(float64(n))
	for _, r := range requests {
		s.env.Bus.Publish("sim.log", s.env.Clock.Now(), "accept "+r.VM.Name+requestTags(r))
	}
	return nil
}

func (s *Simulation) handleRequestReject(args ...any) error {
	requests := args[0].([]*Request)
	n := countEffective(requests)
	s.tracker.Record("rejected", n)
	requestsTotal.WithLabelValues("rejected").Add(float64(n))
	for _, r := range requests {
		s.env.Bus.Publish("sim.log", s.env.Clock.Now(), "reject "+r.VM.Name+requestTags(r))
	}
	return nil
}

func (s *Simulation) handleActionExecute(args ...any) error {
	for _, r := range args[0].([]*Request) {
		if r.Execute != nil {
			r.Execute()
		}
	}
	return nil
}

func (s *Simulation) handleSimLog(args ...any) error {
	if s.cfg.Log {
		logrus.Infof("%s@%d> %s", s.cfg.Name, s.env.Clock.Now(), args[0].(string))
	}
	return nil
}

// subscribeLogFormatters turns lifecycle topics into sim.log lines of the
// form "[owner]: body".
func (s *Simulation) subscribeLogFormatters() {
	lifecycle := func(verb string) func(args ...any) string {
		return func(args ...any) string {
			return fmt.Sprintf("[%s]: %s %s", args[0].(*VM).Name, verb, args[1].(Workload).Name())
		}
	}
	placement := func(verb string) func(args ...any) string {
		return func(args ...any) string {
			return fmt.Sprintf("[%s]: %s %s", args[0].(*PM).Name, verb, args[1].(*VM).Name)
		}
	}
	deployment := func(format string, withCount bool) func(args ...any) string {
		return func(args ...any) string {
			owner := args[0].(*Controller).Name()
			name := args[1].(*Deployment).Name
			if withCount {
				return fmt.Sprintf("[%s]: "+format, owner, name, args[2].(int))
			}
			return fmt.Sprintf("[%s]: "+format, owner, name)
		}
	}

	for topic, format := range map[string]func(args ...any) string{
		"app.start":          lifecycle("start"),
		"app.stop":           lifecycle("stop"),
		"container.start":    lifecycle("start"),
		"container.stop":     lifecycle("stop"),
		"controller.start":   lifecycle("start"),
		"controller.stop":    lifecycle("stop"),
		"deployment.run":     deployment("%s is RUNNING", false),
		"deployment.pend":    deployment("%s is PENDING", false),
		"deployment.degrade": deployment("%s is DEGRADED (%d replica(s) remained)", true),
		"deployment.scale":   deployment("%s is SCALED (± %d replica(s))", true),
		"deployment.stop":    deployment("%s is STOPPED", false),
		"vm.allocate":        placement("allocate"),
		"vm.deallocate":      placement("deallocate"),
	} {
		format := format
		s.env.Bus.Subscribe(topic, func(args ...any) error {
			s.env.Bus.Publish("sim.log", s.env.Clock.Now(), format(args...))
			return nil
		})
	}
}

// subscribeMetricObservers mirrors bus traffic into the Prometheus
// collectors.
func (s *Simulation) subscribeMetricObservers() {
	s.env.Bus.Subscribe("vm.allocate", func(args ...any) error {
		vmAllocationsTotal.Inc()
		guestVMs.Inc()
		return nil
	})
	s.env.Bus.Subscribe("vm.deallocate", func(args ...any) error {
		vmDeallocationsTotal.Inc()
		guestVMs.Dec()
		return nil
	})
	for _, state := range []string{"run", "pend", "degrade", "scale", "stop"} {
		state := state
		s.env.Bus.Subscribe("deployment."+state, func(args ...any) error {
			deploymentTransitionsTotal.WithLabelValues(state).Inc()
			return nil
		})
	}
}

// groupByArrival splits requests into runs of consecutive equal arrival
// times, preserving order within and across groups.
func groupByArrival(requests []*Request) [][]*Request {
	var groups [][]*Request
	for _, r := range requests {
		if n := len(groups); n > 0 && groups[n-1][0].Arrival == r.Arrival {
			groups[n-1] = append(groups[n-1], r)
			continue
		}
		groups = append(groups, []*Request{r})
	}
	return groups
}

func countEffective(requests []*Request) int {
	return lo.CountBy(requests, func(r *Request) bool { return !r.Ignored })
}

func requestTags(r *Request) string {
	tags := ""
	if r.Required {
		tags += " [REQUIRED]"
	}
	if r.Ignored {
		tags += " [IGNORED]"
	}
	return tags
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
