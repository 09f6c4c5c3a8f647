// Package testutil provides deterministic doubles for tests that drive the
// orchestrator and the transports.
package testutil
