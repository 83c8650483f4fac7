package engine

// RunFunc executes a single operation without its pre or cascade operations.
type RunFunc func(op PendingOperation) error

func runOperation(op PendingOperation) error {
	return op.Execute()
}

func ExecutePendingOperation(op PendingOperation) error {
	return ExecutePendingOperationWith(op, runOperation)
}

// ExecutePendingOperationWith runs the pre operations of op, then op, then
// its cascade operations depth first. Vetoed operations are skipped along
// with everything attached to them. The first error stops the walk and is
// returned as is.
func ExecutePendingOperationWith(op PendingOperation, run RunFunc) error {
	if op == nil || op.Vetoed() {
		return nil
	}
	if run == nil {
		run = runOperation
	}

	for _, pre := range op.PreOperations() {
		if pre == nil || pre.Vetoed() {
			continue
		}
		if err := run(pre); err != nil {
			return err
		}
	}

	if err := run(op); err != nil {
		return err
	}

	for _, cascade := range op.CascadeOperations() {
		if err := ExecutePendingOperationWith(cascade, run); err != nil {
			return err
		}
	}
	return nil
}
