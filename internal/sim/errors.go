package sim

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes world adapter failures.
//
// The split matters to the bridge: per-actor codes are logged and skipped so
// the rest of the tick's propagation still runs; only ErrCodeEngineUnavailable
// aborts the run and triggers teardown.
//
// Two more outcomes in the taxonomy are deliberately not errors: a declined
// spawn is the InvalidActorID sentinel from World.Spawn, and an
// untranslatable descriptor is the ok=false return from the Translator.
type ErrorCode string

const (
	// ErrCodeStaleReference indicates a query for an id the engine no
	// longer has. Non-fatal: treated as already destroyed.
	ErrCodeStaleReference ErrorCode = "STALE_REFERENCE"

	// ErrCodeEngineUnavailable indicates the connection to an engine is
	// gone. Fatal to the run.
	ErrCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
)

// WorldError is an error raised by a world adapter.
//
// World names the adapter ("traffic" or "driving"), Actor the affected id
// where one exists. Err carries the underlying cause for unwrapping.
type WorldError struct {
	Code    ErrorCode
	World   string
	Actor   ActorID
	Message string
	Err     error
}

// Error implements the error interface.
func (e *WorldError) Error() string {
	switch {
	case e.Actor.Valid() && e.Err != nil:
		return fmt.Sprintf("%s: %s (world=%s, actor=%s): %v", e.Code, e.Message, e.World, e.Actor, e.Err)
	case e.Actor.Valid():
		return fmt.Sprintf("%s: %s (world=%s, actor=%s)", e.Code, e.Message, e.World, e.Actor)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s (world=%s): %v", e.Code, e.Message, e.World, e.Err)
	default:
		return fmt.Sprintf("%s: %s (world=%s)", e.Code, e.Message, e.World)
	}
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *WorldError) Unwrap() error { return e.Err }

// NewStaleReference creates a WorldError for a query on a vanished actor.
func NewStaleReference(world string, actor ActorID) *WorldError {
	return &WorldError{
		Code:    ErrCodeStaleReference,
		World:   world,
		Actor:   actor,
		Message: "actor no longer known to engine",
	}
}

// NewEngineUnavailable creates a fatal connection-loss WorldError.
func NewEngineUnavailable(world string, err error) *WorldError {
	return &WorldError{
		Code:    ErrCodeEngineUnavailable,
		World:   world,
		Message: "engine connection lost",
		Err:     err,
	}
}

// IsStaleReference reports whether err is a stale-reference failure.
// Uses errors.As to handle wrapped errors.
func IsStaleReference(err error) bool {
	var we *WorldError
	return errors.As(err, &we) && we.Code == ErrCodeStaleReference
}

// IsEngineUnavailable reports whether err is a fatal connection loss.
func IsEngineUnavailable(err error) bool {
	var we *WorldError
	return errors.As(err, &we) && we.Code == ErrCodeEngineUnavailable
}
