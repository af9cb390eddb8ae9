package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrConfiguration marks fatal setup problems: a schema that cannot be
	// built, or dual writes enabled without a version tag. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrCollectionExists is returned when provisioning hits a physical
	// collection left behind by an interrupted cutover.
	ErrCollectionExists = errors.New("collection already exists")

	ErrMigrationInProgress = errors.New("migration in progress")

	// ErrRequiresCutover is returned when in-place patching cannot express a
	// change (collection-level settings are immutable in Typesense).
	ErrRequiresCutover = errors.New("change requires a full cutover")
)
