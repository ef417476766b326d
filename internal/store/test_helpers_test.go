package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/orchard/internal/domain"
)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// baseTime is the fixed creation time for test consultations.
var baseTime = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// createTestConsultation inserts a REQUESTED consultation created minutesAfter
// baseTime.
func createTestConsultation(t *testing.T, s *Store, id, orchardID string, minutesAfter int) domain.Consultation {
	t.Helper()
	c, err := s.InsertConsultation(context.Background(), domain.NewConsultation{
		ID:          id,
		OrchardID:   orchardID,
		GrowerName:  "Asha Rao",
		GrowerPhone: "+91 98000 00001",
		DoctorID:    "DR001",
		Type:        domain.ConsultVideo,
		Notes:       "leaf spots on lower canopy",
		CreatedAt:   baseTime.Add(time.Duration(minutesAfter) * time.Minute),
	})
	if err != nil {
		t.Fatalf("InsertConsultation(%s) failed: %v", id, err)
	}
	return c
}

// testPrescription returns a minimal prescription for consultationID.
func testPrescription(id, consultationID string) domain.NewPrescription {
	return domain.NewPrescription{
		ID:             id,
		ConsultationID: consultationID,
		DoctorName:     "Dr. Meera Kaul",
		HospitalName:   "Valley Plant Clinic",
		IssueDiagnosed: "Apple scab",
		EPPOCode:       "VENTIN",
		Recommendation: "Spray at petal fall",
		IssuedOn:       domain.MustDate("2026-10-01"),
		FollowUpOn:     domain.MustDate("2026-10-15"),
	}
}

// testItems returns action items in a known order.
func testItems() []domain.ActionItemInput {
	return []domain.ActionItemInput{
		{Category: domain.CategoryFungicide, ProductName: "Captan 50 WP", Dosage: "300g/100L", EstimatedCost: 450},
		{Category: domain.CategoryLabor, ProductName: "Spray crew", Dosage: "2 workers x 1 day", EstimatedCost: 800},
		{Category: domain.CategoryOther, ProductName: "Leaf collection", Dosage: "-", EstimatedCost: 0},
	}
}
