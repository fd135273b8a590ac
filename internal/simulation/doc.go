// Package simulation provides a test harness for validating end-to-end
// properties of the branching engine.
//
// The harness exercises the real Driver, Scorer, and SQLiteRepository — no
// mocks. Scenarios are Go builders that seed a root state and a rule pack,
// run a full simulation, and hand the resulting branch tree to
// property-based assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestStormMonotonic(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:     "storm-monotonic",
//	        Entities: []simulation.EntitySpec{...},
//	        Rules:    []rules.Rule{...},
//	    })
//	    simulation.AssertMonotonicConfidence(t, result)
//	}
package simulation
