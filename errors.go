package memocache

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is raised (as a panic) by GetRef when the key is absent.
	// Callers must establish presence with GetOrAdd first.
	ErrKeyNotFound = errors.New("memocache: key not found")

	// ErrStaleRef is raised (as a panic) when a Ref is used after a structural
	// mutation (growth, Remove or Clear) of the table that issued it.
	ErrStaleRef = errors.New("memocache: stale reference")

	// ErrResultUnset is returned when a background computation finished
	// without a result.
	ErrResultUnset = errors.New("memocache: async result unset")

	// ErrNoIndexGetter is raised when an identity key is built for a type
	// without a registered IndexGetter.
	ErrNoIndexGetter = errors.New("memocache: no index getter registered")

	// ErrRejected is the cause recorded when the Runner refused a launch.
	ErrRejected = errors.New("memocache: background launch rejected")
)

// ConfigError reports a setup-time mistake: a missing registry or compute
// function, or a registration with no discoverable clear mechanism.
// It is never retried.
type ConfigError struct {
	Component string
	Reason    string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memocache: %s: %s: %v", e.Component, e.Reason, e.Err)
	}
	return fmt.Sprintf("memocache: %s: %s", e.Component, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(component, reason string) error {
	return &ConfigError{Component: component, Reason: reason}
}

// ComputeError wraps a background computation failure with the table and key
// it belongs to.
type ComputeError struct {
	Table string
	Key   any
	Err   error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("memocache: compute %s[%v]: %v", e.Table, e.Key, e.Err)
}

func (e *ComputeError) Unwrap() []error {
	errs := make([]error, 0, 2)
	errs = append(errs, ErrResultUnset)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
