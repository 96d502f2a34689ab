//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// mockgen is invoked through the //go:generate headers of contract.go and
// the repositories; importing it here keeps it pinned in go.mod.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
