package db

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrTargetSuperseded is returned when a supersede attempt targets a
	// version that is no longer active. The caller lost a concurrent race
	// and should retry from a fresh read.
	ErrTargetSuperseded = errors.New("target already superseded")

	// ErrAlreadyProcessed is returned when marking a reward whose
	// updates-applied marker is already set. The marker is written exactly
	// once and never cleared.
	ErrAlreadyProcessed = errors.New("reward already processed")
)
