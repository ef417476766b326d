// Package engine implements the consultation and prescription workflow.
//
// Every command follows the same shape: validate the payload, check the
// lifecycle precondition against persisted state, write through the
// RecordStore, then re-read what was written. The engine never returns its
// in-memory copy of a record.
//
// Lifecycles:
//
//	Consultation:  REQUESTED → IN_PROGRESS → COMPLETED
//	Prescription:  PENDING → APPLIED | NEEDS_CORRECTION
//
// COMPLETED is reached only as the last write of Issue, which runs in a
// single store transaction together with the prescription and action item
// inserts. Status writes are compare-and-set on the status column, so a
// stale pre-read cannot push a record backwards.
//
// Failures are *Error values with a Code of NOT_FOUND, INVALID_TRANSITION,
// STORE_FAILURE or VALIDATION_FAILURE. Store failures keep the driver's
// message.
//
// Side effects that happen after commit (expense recording, dispatch
// archiving) never undo the committed write. Their failures are reported on
// the command result and logged.
package engine
