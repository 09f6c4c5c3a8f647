// Package harness runs planning scenarios against the registered backends.
//
// A scenario declares one data source and a sequence of operations. Each
// operation is offered to the plan in turn; the harness records whether the
// backend accepted it, and the rejection code when it did not. The final
// plan's wire query is built but never sent.
//
// # Scenario Format
//
//	name: city_margin
//	description: "Grouped margin per city"
//	source:
//	  name: sales
//	  engine: postgres
//	  table: sales
//	  attributes:
//	    - {name: city, type: STRING}
//	    - {name: price, type: NUMBER}
//	steps:
//	  - split: {name: City, expr: $city, dataName: rows}
//	  - apply: {name: revenue, expr: $main.sum($price)}
//	  - sort: {expr: $revenue, direction: descending}
//	  - limit: 10
//	    expect: accepted
//	assertions:
//	  - type: query_contains
//	    text: GROUP BY 1
//
// A scenario may name a catalog source with sourceName instead of declaring
// one inline. Steps are filter, split, apply, sort, limit and total; expect
// is "accepted" or a rejection code.
//
// # Assertion Types
//
//   - trace_contains: a step whose op text contains op, optionally with an outcome
//   - trace_count: exactly count steps with the given outcome
//   - query_contains: the final query text contains text
//   - final_mode: the final plan is raw, total or split
//
// # Golden Files
//
// RunWithGolden compares a canonical JSON snapshot of the trace and the wire
// query against testdata/golden/{name}.golden. Rejection messages are not
// part of the snapshot.
package harness
