package joinbench

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid configuration. It is detected before any
// workload is generated and aborts the run.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// AllocationError reports that a memory resource refused an allocation.
// It is fatal for the current run only.
type AllocationError struct {
	Resource  string
	Requested int64
	InUse     int64
	Limit     int64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation of %d bytes failed on %s (in use %d, limit %d)",
		e.Requested, e.Resource, e.InUse, e.Limit)
}

// InvariantError is an internal consistency failure of a join variant.
// It carries the full configuration and the phase that detected it.
type InvariantError struct {
	Algorithm Algorithm
	Phase     string
	Detail    string
	Config    Config
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s invariant violated in %s: %s (config: %s)",
		e.Algorithm, e.Phase, e.Detail, e.Config.Summary())
}

// IsConfigError reports whether err wraps a *ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsAllocationError reports whether err wraps an *AllocationError
func IsAllocationError(err error) bool {
	var ae *AllocationError
	return errors.As(err, &ae)
}

// IsInvariantError reports whether err wraps an *InvariantError
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
