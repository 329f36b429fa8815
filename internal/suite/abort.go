package suite

// abortSignal is the panic value used to end an instance whose failure
// has already been reported.
type abortSignal struct{}

// Abort stops the running instance. The current step unwinds, remaining
// setup and body steps are skipped, and after hooks still run. The caller
// must have reported the failure already.
func Abort() {
	panic(abortSignal{})
}

// IsAbort reports whether a recovered panic value came from Abort.
func IsAbort(v any) bool {
	_, ok := v.(abortSignal)
	return ok
}
