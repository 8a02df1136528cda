// Package chatrelay provides the public API for embedding the relay in a
// larger application. This is the stable surface for external consumers.
package chatrelay

import (
	"github.com/erenbertr/chatrelay/internal/runtime"
)

// Relay is the assembled service. See internal/runtime.Relay for full
// documentation.
type Relay = runtime.Relay

// Option configures a Relay.
type Option = runtime.Option

// New creates a Relay with the given options.
// Example:
//
//	rl, err := chatrelay.New(
//	    chatrelay.WithConfigFile("config.yaml"),
//	    chatrelay.WithSQLite("./data/chatrelay.db"),
//	)
var New = runtime.New

var (
	// Config sources
	WithConfigFile = runtime.WithConfigFile
	WithConfig     = runtime.WithConfig

	// Storage
	WithMemoryStore = runtime.WithMemoryStore
	WithSQLite      = runtime.WithSQLite
	WithStore       = runtime.WithStore

	// Logging
	WithLogger = runtime.WithLogger
)
