// Package store is the record store adapter for the consultation workflow.
//
// It persists three related entities:
//   - Consultations: grower requests, one per orchard problem
//   - Prescriptions: at most one per consultation
//   - Action Items: ordered instructions owned by one prescription
//
// and returns them as typed domain values. No untyped rows leave this
// package; every read path goes through the scan functions in scan.go.
//
// # Guarantees
//
// Exactly-once issuance:
//   - prescriptions.consultation_id is UNIQUE
//   - a racing second insert fails with ErrUniqueViolation
//
// Deterministic ordering:
//   - consultations: ORDER BY created_at DESC, id DESC
//   - action items: ORDER BY sort_order ASC (sort_order = insertion index)
//
// Server-side status:
//   - InsertConsultation always writes REQUESTED
//   - InsertPrescription always writes PENDING
//
// Compare-and-set:
//   - UpdateConsultationStatus and UpdatePrescriptionStatus accept a From set
//   - a mismatch returns ErrStatusConflict without writing
//
// # Transactions
//
// RunInTx binds a transaction to the context. Store methods called with that
// context join it, so a compound command commits or rolls back as one unit.
//
// # Backends
//
//   - SQLite (Open): mattn/go-sqlite3, WAL mode, single connection,
//     schema versioned with PRAGMA user_version
//   - Postgres (OpenPostgres): pgx database/sql driver, same queries with
//     "?" rebound to "$n"
//
// All failures are *Error values carrying the native driver message and,
// where available, its code.
package store
