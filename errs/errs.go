// Package errs holds the error taxonomy of the row model.
//
// Misuse of the public contract (ConfigurationError, InvalidOperationError) is
// returned to the caller. Degraded operation (LoadFailure,
// AggregationFunctionError) is absorbed where it happens and reported through
// events or the do-once log channel.
package errs

import (
	"fmt"
)

type ConfigurationError struct {
	Msg string
}

func NewConfigurationError(format string, a ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, a...)}
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

type InvalidOperationError struct {
	Op  string
	Msg string
}

func NewInvalidOperation(op, format string, a ...any) *InvalidOperationError {
	return &InvalidOperationError{Op: op, Msg: fmt.Sprintf(format, a...)}
}

func (e *InvalidOperationError) Error() string {
	return "invalid operation " + e.Op + ": " + e.Msg
}

// LoadFailure is a block request that ended through the failure callback.
type LoadFailure struct {
	StoreID    string
	BlockStart int
	BlockEnd   int
	Err        error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("load block [%d,%d) of store %s: %s", e.BlockStart, e.BlockEnd, e.StoreID, e.Err)
}

func (e *LoadFailure) Unwrap() error {
	return e.Err
}

// AggregationFunctionError is a user aggregation function that failed or
// panicked for one group node.
type AggregationFunctionError struct {
	Column string
	NodeID string
	Err    error
}

func (e *AggregationFunctionError) Error() string {
	return fmt.Sprintf("aggregation of column '%s' on node '%s': %s", e.Column, e.NodeID, e.Err)
}

func (e *AggregationFunctionError) Unwrap() error {
	return e.Err
}
