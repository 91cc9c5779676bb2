// Package simulation provides a scenario harness for validating the
// emergent behavior of the engine.
//
// The harness exercises the real Engine and a real SQLite recording, with
// no mocks. Scenarios are Go values that list timed commands and a run
// length; the Runner advances virtual time, applies commands at their
// instants, and captures engine snapshots for property assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a
// sandboxed HOME to prevent touching user data.
//
// Usage:
//
//	func TestOutputWindow(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:     "output-window",
//	        Seed:     7,
//	        Actions:  []simulation.Action{simulation.Select(0, topology.PatternA)},
//	        Duration: 16 * time.Second,
//	    })
//	    simulation.AssertOutputSpikes(t, result, 1, 13, 16)
//	}
package simulation
