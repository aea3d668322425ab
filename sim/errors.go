package sim

import "fmt"

// RequiredRequestRejectedError is fatal: a request flagged as required could
// not be placed, so the simulated scenario is unsatisfiable.
type RequiredRequestRejectedError struct {
	VM string
}

func (e *RequiredRequestRejectedError) Error() string {
	return fmt.Sprintf("sim: required allocation request rejected for VM %q", e.VM)
}

// ContainerNodeMismatchError is fatal: a container.stop event named a
// container/node pair inconsistent with the control plane's ledger.
type ContainerNodeMismatchError struct {
	Container string
	Node      string
}

func (e *ContainerNodeMismatchError) Error() string {
	return fmt.Sprintf("sim: container %q is not tracked on node %q", e.Container, e.Node)
}
