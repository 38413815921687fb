// Package cluster keeps the membership of a grid in sync with the coordination
// service.
//
// ClusterNodeAgent is used by a server: it registers the node as an ephemeral
// sequential child of the register path (the generated name becomes the
// instance id), marks its own entry as owner and replays the registration when
// the session is lost (checked on session events and by a keep-alive loop).
//
// ClusterClient is used by a caller: it reads the communicator configuration
// stored as data of the register path and follows the member list.
//
// Both share one watcher: every change of the register children reloads all
// member nodes and installs them into a membership.Membership, which runs the
// bucket rebalancing and offers the node selection strategies. Registered
// NodeChangedHandler functions are called after every change.
//
// Coordination failures are retried with a fixed backoff (Options.RetryBackoff)
// for as long as the start context or the agent / client lives.
package cluster
