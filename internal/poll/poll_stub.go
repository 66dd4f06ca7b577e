//go:build !linux
// +build !linux

// File: internal/poll/poll_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallback for platforms without a poll backend.

package poll

import (
	"github.com/momentics/hioload-reactor/api"
)

func openSelector() (Selector, error) {
	return nil, api.ErrNotSupported
}
