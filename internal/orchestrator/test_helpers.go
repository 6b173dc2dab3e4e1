package orchestrator

// SetForTest sets the global orchestrator for testing.
func SetForTest(o *Orchestrator) {
	Set(o)
}

// ResetForTest clears the global orchestrator.
func ResetForTest() {
	Set(nil)
}
