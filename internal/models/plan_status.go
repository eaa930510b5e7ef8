package models

import (
	"errors"
	"fmt"
)

type PlanStatus string

const (
	StatusCreated         PlanStatus = "created"
	StatusSubmitted       PlanStatus = "submitted"
	StatusPartiallyFilled PlanStatus = "partially_filled"
	StatusFilled          PlanStatus = "filled"
	StatusCanceled        PlanStatus = "canceled"
	StatusError           PlanStatus = "error"
)

var ErrIllegalTransition = errors.New("illegal status transition")

var transitions = map[PlanStatus][]PlanStatus{
	StatusCreated:         {StatusSubmitted, StatusPartiallyFilled, StatusFilled, StatusCanceled, StatusError},
	StatusSubmitted:       {StatusPartiallyFilled, StatusFilled, StatusCanceled, StatusError},
	StatusPartiallyFilled: {StatusFilled, StatusCanceled, StatusError},
}

func (s PlanStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusSubmitted, StatusPartiallyFilled, StatusFilled, StatusCanceled, StatusError:
		return true
	}
	return false
}

func (s PlanStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusError
}

func (s PlanStatus) InFlight() bool {
	return s == StatusCreated || s == StatusSubmitted || s == StatusPartiallyFilled
}

// CanTransition reports whether an event may move a plan from one status to
// another. Self-transitions are annotations (resume checks) and are only
// allowed while the plan is in flight.
func CanTransition(from, to PlanStatus) bool {
	if from == to {
		return from.InFlight()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CheckTransition(from, to PlanStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

func InFlightStatuses() []PlanStatus {
	return []PlanStatus{StatusCreated, StatusSubmitted, StatusPartiallyFilled}
}

func TerminalStatuses() []PlanStatus {
	return []PlanStatus{StatusFilled, StatusCanceled, StatusError}
}
