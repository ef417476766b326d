package domain

// ConsultationTransitions lists the forward edges of the consultation
// lifecycle. COMPLETED has no outgoing edges.
var ConsultationTransitions = map[ConsultationStatus][]ConsultationStatus{
	ConsultationRequested:  {ConsultationInProgress},
	ConsultationInProgress: {ConsultationCompleted},
	ConsultationCompleted:  nil,
}

// AcceptableFrom lists the consultation states from which accept is allowed.
// Accepting an IN_PROGRESS consultation re-stamps the doctor without moving
// the status.
var AcceptableFrom = []ConsultationStatus{ConsultationRequested, ConsultationInProgress}

// PrescriptionTransitions lists the edges of the prescription lifecycle.
// APPLIED and NEEDS_CORRECTION are terminal; there is no re-issuance path.
var PrescriptionTransitions = map[PrescriptionStatus][]PrescriptionStatus{
	PrescriptionPending:         {PrescriptionApplied, PrescriptionNeedsCorrection},
	PrescriptionApplied:         nil,
	PrescriptionNeedsCorrection: nil,
}

// Valid reports whether s is a known consultation status.
func (s ConsultationStatus) Valid() bool {
	_, ok := ConsultationTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s ConsultationStatus) Terminal() bool {
	return s.Valid() && len(ConsultationTransitions[s]) == 0
}

// CanTransition reports whether from → to is an edge of the lifecycle.
func (s ConsultationStatus) CanTransition(to ConsultationStatus) bool {
	for _, next := range ConsultationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CanAccept reports whether a doctor may accept a consultation in state s.
func (s ConsultationStatus) CanAccept() bool {
	for _, st := range AcceptableFrom {
		if st == s {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known prescription status.
func (s PrescriptionStatus) Valid() bool {
	_, ok := PrescriptionTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s PrescriptionStatus) Terminal() bool {
	return s.Valid() && len(PrescriptionTransitions[s]) == 0
}

// CanTransition reports whether from → to is an edge of the lifecycle.
func (s PrescriptionStatus) CanTransition(to PrescriptionStatus) bool {
	for _, next := range PrescriptionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PrescriptionSourcesFor returns every state that may move to target.
// Used to build compare-and-set guards.
func PrescriptionSourcesFor(target PrescriptionStatus) []PrescriptionStatus {
	var out []PrescriptionStatus
	for _, from := range []PrescriptionStatus{PrescriptionPending, PrescriptionApplied, PrescriptionNeedsCorrection} {
		if from.CanTransition(target) {
			out = append(out, from)
		}
	}
	return out
}
