// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package poll provides the readiness selector abstraction used by the
// reactor loops, with an epoll implementation for Linux. Wakeup is a
// dedicated eventfd registered on the same epoll instance, so a blocked
// Select can be interrupted from any goroutine.
package poll
