// Package harness runs conformance scenarios against the factory.
//
// A scenario drives create_collection and mint_proxy through a fresh
// in-memory local replica, records what happened as a trace and checks the
// trace and the replica's final state against assertions.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	request_id: req          # steps run as req-1, req-2, ...
//	funds: 1000000000000     # cycles credited to the factory
//	faults:
//	  - op: install_code
//	    code: CanisterError
//	    message: trapped
//	flow:
//	  - invoke: create_collection
//	    caller: alice
//	    args: { name: Punks, symbol: PNK, wasm_name: icrc7 }
//	    expect:
//	      case: ok
//	      result: { ownership: handed_off }
//	  - invoke: mint_proxy
//	    args:
//	      id: 1
//	      name: "Punk #1"
//	      image: ipfs://punk
//	      to: { owner: "@bob" }
//	      canister_name: icrc7
//	      canister_id: $unit1
//	    expect: { case: ok }
//	assertions:
//	  - type: trace_order
//	    actions: [create_canister, install_code, update_settings]
//	  - type: final_state
//	    unit: $unit1
//	    expect: { module: icrc7, tokens: 1, controllers: ["@alice"] }
//
// String values are resolved before use: "@name" is the principal derived
// from name, and "$unitN" is the N-th unit created by the scenario.
//
// # Assertion Types
//
//   - trace_contains: an invocation or runtime call appears with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - outcome: a step completed with the given case and message
//   - final_state: a unit's controllers, module and token count
//
// # Deterministic Testing
//
// Request ids are fixed per step and the replica's logical clock starts at
// zero for every run, so traces are byte-identical across runs and can be
// compared against golden files under testdata/golden.
package harness
