// Package harness runs conformance scenarios against a health store.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	steps:
//	  - op: grant
//	    caller: org.example.tracker
//	    metric: weight
//	    permission: read
//	  - as: org.example.tracker
//	    op: insert
//	    uri: body/weight
//	    values: { _metric: 1008, value: 71.5 }
//	    expect:
//	      uri_empty: true
//	  - op: query
//	    uri: body/weight
//	    projection: [_id, value]
//	    expect:
//	      count: 0
//
// Addresses are relative to the store authority. A step without "as" runs
// as the store owner.
//
// # Operations
//
//   - insert, update, delete, query, bulk: addressed record operations
//   - grant: set the permission of a caller on a metric
//   - batch: apply a list of operations in one transaction
//   - profile_set, profile_reset, profile_get: the medical profile
//
// # Expectations
//
//   - count: affected rows, inserted rows, or rows read
//   - rows: rows read, each matched as a subset of the returned row
//   - uri, uri_empty: the address returned by an insert
//   - error: the code of the expected failure (e.g. VALIDATION)
//   - denied: the write was dropped by an access policy
//   - profile: fields of the profile read by profile_get
//
// # Deterministic Testing
//
// Every scenario runs in a fresh data directory with in-memory key
// material, a manual clock that advances one minute per step and
// sequential transaction ids. Traces are therefore identical across runs
// and can be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/write_only.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
