// Package core contains the session-broker domain contracts, entities, and
// decision logic. Lower-level adapters must depend on this package; core
// must not depend on host-specific or transport-specific adapters.
package core
