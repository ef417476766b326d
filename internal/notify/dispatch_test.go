package notify

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orchard/internal/domain"
)

func fullPrescription() domain.Prescription {
	return domain.Prescription{
		ID:             "0192a3f4-5b6c-7d8e-9f00-112233445566",
		ConsultationID: "c-1",
		DoctorName:     "Dr. Meera Kaul",
		HospitalName:   "Valley Plant Clinic",
		IssueDiagnosed: "Apple scab",
		EPPOCode:       "VENTIN",
		Recommendation: "Spray at petal fall; remove fallen leaves",
		IssuedOn:       domain.MustDate("2026-10-01"),
		FollowUpOn:     domain.MustDate("2026-10-15"),
		Status:         domain.PrescriptionPending,
		ActionItems: []domain.ActionItem{
			{Category: domain.CategoryFungicide, ProductName: "Captan 50 WP", Dosage: "300g/100L", EstimatedCost: 450, SortOrder: 0},
			{Category: domain.CategoryLabor, ProductName: "Spray crew", Dosage: "2 workers x 1 day", EstimatedCost: 300, SortOrder: 1},
			{Category: domain.CategoryOther, ProductName: "Leaf collection", EstimatedCost: 0, SortOrder: 2},
		},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestFormatDispatchMessage_Golden(t *testing.T) {
	g := newGoldie(t)

	msg := FormatDispatchMessage(fullPrescription(), "Asha Rao", "+91 98000 00001")
	g.Assert(t, "dispatch_full", []byte(msg))
}

func TestFormatDispatchMessage_MinimalGolden(t *testing.T) {
	g := newGoldie(t)

	msg := FormatDispatchMessage(domain.Prescription{ID: "rx-1"}, "", "")
	g.Assert(t, "dispatch_minimal", []byte(msg))
}

func TestFormatDispatchMessage_Deterministic(t *testing.T) {
	p := fullPrescription()
	first := FormatDispatchMessage(p, "Asha Rao", "1")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, FormatDispatchMessage(p, "Asha Rao", "1"))
	}
}

func TestFormatDispatchMessage_TotalMatchesItems(t *testing.T) {
	tests := []struct {
		name  string
		costs []float64
	}{
		{"single", []float64{450}},
		{"zero cost only", []float64{0}},
		{"mixed with zero", []float64{0, 99.5, 0.5}},
		{"large", []float64{1000, 250}},
		{"fractional", []float64{0.1, 0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.Prescription{ID: "rx"}
			for i, c := range tt.costs {
				p.ActionItems = append(p.ActionItems, domain.ActionItem{
					Category: domain.CategoryOther, ProductName: "x", EstimatedCost: c, SortOrder: i,
				})
			}
			msg := FormatDispatchMessage(p, "g", "")
			assert.Contains(t, msg, "Total estimated cost: "+FormatAmount(p.TotalCost())+"\n")
		})
	}
}

func TestFormatDispatchMessage_ItemsInOrder(t *testing.T) {
	msg := FormatDispatchMessage(fullPrescription(), "Asha Rao", "")

	first := strings.Index(msg, "1. [FUNGICIDE] Captan 50 WP")
	second := strings.Index(msg, "2. [LABOR] Spray crew")
	third := strings.Index(msg, "3. [OTHER] Leaf collection")
	assert.True(t, first >= 0 && first < second && second < third, msg)
}

func TestFormatDispatchMessage_OmitsEmptyEPPOAndPhone(t *testing.T) {
	p := fullPrescription()
	p.EPPOCode = ""
	msg := FormatDispatchMessage(p, "Asha Rao", "")

	assert.Contains(t, msg, "Diagnosis: Apple scab\n")
	assert.Contains(t, msg, "Grower: Asha Rao\n")
	assert.NotContains(t, msg, "EPPO")
}

func TestFormatAmount_PinnedGrouping(t *testing.T) {
	assert.Equal(t, "Rs. 450.00", FormatAmount(450))
	assert.Equal(t, "Rs. 0.00", FormatAmount(0))
	assert.Equal(t, "Rs. 1,250.00", FormatAmount(1250))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "33445566", ShortID("0192a3f4-5b6c-7d8e-9f00-112233445566"))
	assert.Equal(t, "ID0002", ShortID("id-0002"))
	assert.Equal(t, "RX1", ShortID("rx-1"))
	assert.Equal(t, "", ShortID(""))
}

func TestShortID_DistinctForUUIDv7(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		id := uuid.Must(uuid.NewV7()).String()
		short := ShortID(id)
		require.Len(t, short, 8)
		prev, dup := seen[short]
		require.False(t, dup, "%s and %s share short id %s", prev, id, short)
		seen[short] = id
	}
}
