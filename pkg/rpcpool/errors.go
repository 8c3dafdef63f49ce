package rpcpool

import "errors"

// Sentinel errors instead of nil, nil returns, following the retrieval
// pack's execution/errors.go and database/errors.go convention.
var (
	ErrNoConsensus       = errors.New("no consensus reached among providers")
	ErrNoProvidersLeft   = errors.New("no providers remain after exclusions")
	ErrProviderTimeout   = errors.New("provider request timed out")
	ErrProviderHTTP      = errors.New("provider http error")
	ErrJSONRPCError      = errors.New("provider returned a json-rpc error")
	ErrValidationError   = errors.New("provider response failed validation")
)
