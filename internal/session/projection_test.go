package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/orchard/internal/domain"
)

func fixture() []domain.Consultation {
	return []domain.Consultation{
		{ID: "c-4", DoctorID: "DR001", Status: domain.ConsultationRequested},
		{ID: "c-3", DoctorID: "DR002", Status: domain.ConsultationCompleted,
			Prescription: &domain.Prescription{ID: "rx-3", Status: domain.PrescriptionPending}},
		{ID: "c-2", DoctorID: "DR001", Status: domain.ConsultationCompleted,
			Prescription: &domain.Prescription{ID: "rx-2", Status: domain.PrescriptionApplied}},
		{ID: "c-1", DoctorID: "DR001", Status: domain.ConsultationCompleted,
			Prescription: &domain.Prescription{ID: "rx-1", Status: domain.PrescriptionPending}},
	}
}

func TestAllPrescriptions(t *testing.T) {
	rx := AllPrescriptions(fixture())
	ids := make([]string, len(rx))
	for i, p := range rx {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"rx-3", "rx-2", "rx-1"}, ids)
	assert.Empty(t, AllPrescriptions(nil))
}

func TestPendingRxCount(t *testing.T) {
	assert.Equal(t, 2, PendingRxCount(fixture()))
	assert.Zero(t, PendingRxCount(nil))
}

func TestDoctorQueue(t *testing.T) {
	q := DoctorQueue(fixture(), "DR001")
	assert.Len(t, q, 3)
	assert.Equal(t, "c-4", q[0].ID)

	assert.Len(t, DoctorQueue(fixture(), "DR002"), 1)
	assert.NotNil(t, DoctorQueue(fixture(), "DR404"))
	assert.Empty(t, DoctorQueue(fixture(), "DR404"))
}

func TestStatusCounts(t *testing.T) {
	counts := StatusCounts(fixture())
	assert.Equal(t, 1, counts[domain.ConsultationRequested])
	assert.Equal(t, 3, counts[domain.ConsultationCompleted])
	assert.Zero(t, counts[domain.ConsultationInProgress])
}
