// Package connectors defines the long-running services the watch loop
// supervises: the mailbox poller and the fixtures watcher.
package connectors

import "context"

// Connector runs until its context is cancelled. Start blocks.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
}
