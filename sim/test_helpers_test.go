package sim

// Shared fixtures for the sim package tests.

type recordedEvent struct {
	topic string
	args  []any
}

// recorder captures bus traffic on the watched topics in delivery order.
type recorder struct {
	events []recordedEvent
}

func (r *recorder) watch(bus *EventBus, topics ...string) {
	for _, topic := range topics {
		topic := topic
		bus.Subscribe(topic, func(args ...any) error {
			r.events = append(r.events, recordedEvent{topic: topic, args: args})
			return nil
		})
	}
}

func (r *recorder) count(topic string) int {
	n := 0
	for _, ev := range r.events {
		if ev.topic == topic {
			n++
		}
	}
	return n
}

func (r *recorder) last(topic string) (recordedEvent, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].topic == topic {
			return r.events[i], true
		}
	}
	return recordedEvent{}, false
}

// fakePlane counts Manage invocations and reports a fixed Stopped value.
type fakePlane struct {
	manageCalls int
	stopped     bool
}

func (f *fakePlane) Apply(*Deployment)       {}
func (f *fakePlane) Scale(*Deployment, int)  {}
func (f *fakePlane) Delete(*Deployment, int) {}
func (f *fakePlane) Manage()                 { f.manageCalls++ }
func (f *fakePlane) Stopped() bool           { return f.stopped }

func fakePlaneFactory(f *fakePlane) ControlPlaneFactory {
	return func(env *Env, c *Controller) ControlPlane { return f }
}

func testHost(env *Env, name string, cores []int, ram int, gpus ...GPUProfile) *PM {
	return NewPM(env, name, cores, ram, gpus, NewSpaceSharedVMM)
}

func testVM(env *Env, name string, cpu, ram int, gpu *GPUProfile) *VM {
	return NewVM(env, name, cpu, ram, gpu, NewTimeSharedOS)
}

func testDC(env *Env, hosts ...*PM) *DataCenter {
	return NewDataCenter(env, "dc", hosts, NewFirstFitVMP)
}

func testApp(env *Env, name string, length ...int) *App {
	return NewApp(env, AppConfig{Name: name, Length: length})
}

func workloadNames(ws []Workload) []string {
	names := make([]string, 0, len(ws))
	for _, w := range ws {
		names = append(names, w.Name())
	}
	return names
}
