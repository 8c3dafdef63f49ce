package signer

import "errors"

var (
	ErrUnknownPath     = errors.New("signer: unknown derivation path")
	ErrSignatureFailed = errors.New("signer: signature request failed")
)
