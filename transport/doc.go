// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package transport provides the non-blocking socket channel layer the
// reactor dispatches on: a thin fd wrapper with non-blocking read/write
// semantics, socket option application, and helpers for creating listening,
// connecting, and paired channels.
package transport
