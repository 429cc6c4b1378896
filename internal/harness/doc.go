// Package harness runs conformance scenarios against the engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: dedup_convergence
//	description: "Rows that share a key collapse into one statement"
//	schema: |
//	  CREATE TABLE url (id INTEGER PRIMARY KEY, url TEXT UNIQUE, status INTEGER);
//	setup:
//	  - INSERT INTO url (id, url, status) VALUES (1, 'http://a', 200)
//	steps:
//	  - op: update
//	    path: /url
//	    rows:
//	      - { id: 7, url: "http://b" }
//	    expect:
//	      ids: [7]
//	  - op: claim
//	    path: /job?status=0&limit:2&update:status=1
//	    expect:
//	      count: 2
//	assertions:
//	  - type: final_state
//	    path: /url?id=7
//	    expect: { url: "http://b" }
//	  - type: row_count
//	    path: /url?limit:100
//	    count: 2
//
// Steps are get, update and claim calls. A step without expect must
// succeed; expect.error names the error kind a failing step must report.
// Row expectations are subset matches in order.
//
// # Assertion Types
//
//   - final_state: the path selects exactly one row, which contains the
//     expected fields
//   - row_count: the path selects exactly count rows
//
// Both go through the engine's get, so the default limit of one row applies
// unless the path sets limit:.
//
// # Golden Files
//
// RunWithGolden compares the step trace with testdata/golden/<name>.golden.
package harness
