package core

// ModuleID uniquely identifies a module within the registry, using dotted
// namespaces such as "store.sqlite" or "channel.telegram". The ID is also
// the module's key in the configuration file's modules section.
type ModuleID string

// ModuleInfo describes a registered module: its unique ID and a constructor
// returning a fresh, unconfigured instance.
type ModuleInfo struct {
	ID ModuleID

	// New returns a new, unprovisioned instance of the module.
	New func() Module
}

// Module is the minimal interface every module implements. Lifecycle
// capabilities (Configurable, Provisioner, Validator, Starter, Stopper) are
// optional and discovered by type assertion during loading.
type Module interface {
	ModuleInfo() ModuleInfo
}
