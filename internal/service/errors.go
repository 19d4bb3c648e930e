package service

import "errors"

var (
	// ErrStoreRequired is returned by constructors missing a record store.
	ErrStoreRequired = errors.New("record store is required")

	// ErrOracleDisabled is returned when an oracle call is attempted
	// without a configured API key. Callers treat it like any other
	// oracle failure and fall back.
	ErrOracleDisabled = errors.New("oracle is not enabled (missing API key)")
)
