//go:build tools

// Package tools pins the code generators run by go generate, so mockgen
// resolves to the version recorded in go.mod on a fresh checkout.
package dmlab

import (
	_ "go.uber.org/mock/mockgen"
)
