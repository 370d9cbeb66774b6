// Package orchestrator wires capture sources, the frame scheduler, detectors
// and result sinks into a restartable scanning session.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// History event channel buffer
	HistoryEventBuffer = 100

	// Default window for history queries
	DefaultHistoryWindow = 5 * time.Minute

	// Minimum characters for a text item to be recorded in history
	MinTextLengthForHistory = 2
)
