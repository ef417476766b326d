// Package harness runs workflow scenarios against a real engine.
//
// A scenario drives one orchard through a sequence of commands on a fresh
// in-memory store and then checks the trace and the final projection.
//
// # Scenario Format
//
//	name: happy_path
//	description: "Request, accept, issue and execute one prescription"
//	orchard: orch-1
//	flow:
//	  - invoke: request
//	    args: { grower_name: Asha Rao, doctor_id: DR001, type: VIDEO }
//	    save_as: c1
//	  - invoke: accept
//	    args: { consultation_id: $c1, doctor_id: DR002 }
//	  - invoke: issue
//	    args:
//	      consultation_id: $c1
//	      issue_diagnosed: Apple scab
//	      recommendation: Protective cover before rain.
//	      action_items:
//	        - { category: FUNGICIDE, product_name: Captan 50 WP, estimated_cost: 450 }
//	    save_as: rx1
//	    expect: { case: ok, result: { status: PENDING } }
//	assertions:
//	  - type: final_state
//	    entity: consultation
//	    ref: c1
//	    expect: { status: COMPLETED }
//
// String arguments of the form $name are replaced with the id saved by an
// earlier step's save_as. The expected case is "ok" or an engine error
// code such as INVALID_TRANSITION.
//
// # Assertion Types
//
//   - trace_contains: an invocation of action with matching args
//   - trace_order: actions invoked in the given order
//   - trace_count: action invoked exactly count times, optionally with case
//   - final_state: the stored consultation or prescription saved as ref
//   - pending_count: PENDING prescriptions in the orchard
//   - queue_size: consultations assigned to doctor
//   - total_cost: summed action item cost of the prescription saved as ref
//   - expense_calls: how many times the expense recorder ran
//
// # Determinism
//
// Every run uses a stepping clock starting at testutil.DefaultBase and
// sequential ids (id-0001, id-0002, ...), so traces can be compared with
// golden files.
package harness
