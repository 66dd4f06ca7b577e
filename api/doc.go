// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package api defines the public contracts of the hioload-reactor library:
// the reactor surface, per-connection sessions, event handlers, and the
// error taxonomy shared by all reactor implementations.
package api
