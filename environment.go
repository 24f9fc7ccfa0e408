package oluacle

import (
	"sync"

	"github.com/oluacle/oluacle/oci"
)

// Environment owns the native environment handle every connection derives
// from. The handle is created on first use and lives for the rest of the
// process; there is no teardown.
type Environment struct {
	api oci.API

	mu     sync.Mutex
	handle oci.Handle
}

// NewEnvironment wraps api. No native call is made until a connection needs
// the handle.
func NewEnvironment(api oci.API) *Environment {
	return &Environment{api: api}
}

// API returns the native interface the environment was built over.
func (e *Environment) API() oci.API {
	return e.api
}

// Handle returns the native environment handle, creating it on first call.
// A failed creation is not remembered, so a later call retries.
func (e *Environment) Handle() (oci.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != 0 {
		return e.handle, nil
	}
	h, st := e.api.EnvCreate()
	if st != oci.OCI_SUCCESS || h == 0 {
		return 0, allocError("environment", "environment handle", st)
	}
	e.handle = h
	return h, nil
}

var (
	defaultEnvOnce sync.Once
	defaultEnv     *Environment
	defaultEnvErr  error

	defaultLoadMu sync.Mutex
	defaultLoad   oci.LoadConfig
)

// InitLibrary sets the library configuration used by DefaultEnvironment.
// It has no effect once the default environment has been created.
func InitLibrary(cfg oci.LoadConfig) error {
	defaultLoadMu.Lock()
	defaultLoad = cfg
	defaultLoadMu.Unlock()
	_, err := DefaultEnvironment()
	return err
}

// DefaultEnvironment returns the process-wide environment backed by the
// OCI client library.
func DefaultEnvironment() (*Environment, error) {
	defaultEnvOnce.Do(func() {
		defaultLoadMu.Lock()
		cfg := defaultLoad
		defaultLoadMu.Unlock()
		lib, err := oci.Load(cfg)
		if err != nil {
			defaultEnvErr = err
			return
		}
		defaultEnv = NewEnvironment(lib)
	})
	return defaultEnv, defaultEnvErr
}
