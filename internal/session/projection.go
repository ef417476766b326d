package session

import "github.com/roach88/orchard/internal/domain"

// AllPrescriptions flattens the zero-or-one prescription of each
// consultation, preserving consultation order.
func AllPrescriptions(cs []domain.Consultation) []domain.Prescription {
	return domain.FlattenPrescriptions(cs)
}

// PendingRxCount counts prescriptions awaiting execution.
func PendingRxCount(cs []domain.Consultation) int {
	n := 0
	for _, c := range cs {
		if c.Prescription != nil && c.Prescription.Status == domain.PrescriptionPending {
			n++
		}
	}
	return n
}

// DoctorQueue returns the consultations currently assigned to doctorID.
func DoctorQueue(cs []domain.Consultation, doctorID string) []domain.Consultation {
	out := make([]domain.Consultation, 0)
	for _, c := range cs {
		if c.DoctorID == doctorID {
			out = append(out, c)
		}
	}
	return out
}

// StatusCounts tallies consultations by status.
func StatusCounts(cs []domain.Consultation) map[domain.ConsultationStatus]int {
	counts := make(map[domain.ConsultationStatus]int, len(domain.ConsultationTransitions))
	for _, c := range cs {
		counts[c.Status]++
	}
	return counts
}
