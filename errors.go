package main

import "github.com/pkg/errors"

// Forward errors
var (
	// ErrUnknownMode indicates a forward mode other than "fwd" or "generate".
	ErrUnknownMode = errors.New("unknown mode")

	// ErrShapeMismatch indicates model inputs whose shapes disagree with
	// the configuration or with each other.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Configuration errors
var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("configuration file not found")
)
