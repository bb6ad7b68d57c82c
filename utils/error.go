package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorNoRecords is returned when a batch has zero uploaded records to reconcile.
var ErrorNoRecords = errors.New("batch has no uploaded records")

// ErrorPersistenceFailure wraps store write failures surfaced by the engine.
var ErrorPersistenceFailure = errors.New("persistence failure")
