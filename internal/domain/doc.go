// Package domain defines the consultation and prescription records shared by
// the store, engine, and projection layers.
//
// # Lifecycles
//
// A Consultation moves strictly forward:
//
//	REQUESTED → IN_PROGRESS → COMPLETED
//
// A Prescription leaves PENDING exactly once:
//
//	PENDING → APPLIED
//	PENDING → NEEDS_CORRECTION
//
// The allowed edges are declared as data (ConsultationTransitions,
// PrescriptionTransitions) so every layer checks the same table.
//
// # Derived Values
//
// Totals are never stored. Prescription.TotalCost sums the action items on
// every call, so a projection reload and a dispatch message always agree.
//
// # Normalization
//
// Free-text inputs are trimmed and NFC-normalized at the boundary
// (Normalize* functions) so that visually identical names and dosages compare
// equal after a round-trip through the store.
package domain
