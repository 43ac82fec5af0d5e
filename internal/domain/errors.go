package domain

import "errors"

var (
	// ErrFlowNotFound indicates a job or request referenced a flow record that does not exist.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowExists indicates a flow record with the same id was already written.
	ErrFlowExists = errors.New("flow already exists")

	ErrUnknownQueue = errors.New("unknown queue")

	// ErrIllegalRoute indicates a stage result named a successor outside the routing table.
	ErrIllegalRoute = errors.New("illegal route")

	// ErrResultMismatch indicates a stage function returned a result for another stage.
	ErrResultMismatch = errors.New("result does not match stage")
)

func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

func IsFlowExists(err error) bool {
	return errors.Is(err, ErrFlowExists)
}
