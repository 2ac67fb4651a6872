package usecase

import "sync/atomic"

// RuntimeFlags holds mutable process-wide toggles read at request time.
// Injected into services rather than read from a global so tests can flip
// flags per instance without cross-test leakage.
type RuntimeFlags struct {
	maintenance atomic.Bool
}

func NewRuntimeFlags(maintenance bool) *RuntimeFlags {
	f := &RuntimeFlags{}
	f.maintenance.Store(maintenance)
	return f
}

func (f *RuntimeFlags) Maintenance() bool {
	if f == nil {
		return false
	}
	return f.maintenance.Load()
}

func (f *RuntimeFlags) SetMaintenance(on bool) {
	f.maintenance.Store(on)
}
