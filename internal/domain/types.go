package domain

import (
	"time"
)

// ConsultationStatus is the lifecycle state of a Consultation.
type ConsultationStatus string

const (
	// ConsultationRequested is the initial state set by the grower.
	ConsultationRequested ConsultationStatus = "REQUESTED"
	// ConsultationInProgress means a doctor accepted the case.
	ConsultationInProgress ConsultationStatus = "IN_PROGRESS"
	// ConsultationCompleted means a prescription was issued. Terminal.
	ConsultationCompleted ConsultationStatus = "COMPLETED"
)

// ConsultType is the consult modality chosen by the grower.
type ConsultType string

const (
	ConsultChat        ConsultType = "CHAT"
	ConsultCall        ConsultType = "CALL"
	ConsultVideo       ConsultType = "VIDEO"
	ConsultOnsiteVisit ConsultType = "ONSITE_VISIT"
)

// PrescriptionStatus is the lifecycle state of a Prescription.
type PrescriptionStatus string

const (
	// PrescriptionPending is set at issuance.
	PrescriptionPending PrescriptionStatus = "PENDING"
	// PrescriptionApplied means the grower carried out the prescription.
	PrescriptionApplied PrescriptionStatus = "APPLIED"
	// PrescriptionNeedsCorrection means the prescription was disputed.
	PrescriptionNeedsCorrection PrescriptionStatus = "NEEDS_CORRECTION"
)

// Category classifies an ActionItem.
type Category string

const (
	CategoryFungicide   Category = "FUNGICIDE"
	CategoryInsecticide Category = "INSECTICIDE"
	CategoryFertilizer  Category = "FERTILIZER"
	CategoryLabor       Category = "LABOR"
	CategoryIrrigation  Category = "IRRIGATION"
	CategoryOther       Category = "OTHER"
)

var (
	consultTypes = map[ConsultType]bool{
		ConsultChat: true, ConsultCall: true, ConsultVideo: true, ConsultOnsiteVisit: true,
	}
	categories = map[Category]bool{
		CategoryFungicide: true, CategoryInsecticide: true, CategoryFertilizer: true,
		CategoryLabor: true, CategoryIrrigation: true, CategoryOther: true,
	}
)

// Valid reports whether t is a known modality.
func (t ConsultType) Valid() bool { return consultTypes[t] }

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return categories[c] }

// Consultation is a grower's request for expert help on one orchard.
type Consultation struct {
	ID          string             `json:"id"`
	OrchardID   string             `json:"orchard_id"`
	GrowerName  string             `json:"grower_name"`
	GrowerPhone string             `json:"grower_phone"`
	DoctorID    string             `json:"doctor_id"`
	Type        ConsultType        `json:"type"`
	TargetAt    *time.Time         `json:"target_at,omitempty"`
	Notes       string             `json:"notes"`
	Status      ConsultationStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`

	// Prescription is set only once Status is COMPLETED.
	Prescription *Prescription `json:"prescription,omitempty"`
}

// Prescription is the structured outcome of a completed consultation.
type Prescription struct {
	ID             string             `json:"id"`
	ConsultationID string             `json:"consultation_id"`
	DoctorName     string             `json:"doctor_name"`
	HospitalName   string             `json:"hospital_name"`
	IssueDiagnosed string             `json:"issue_diagnosed"`
	EPPOCode       string             `json:"eppo_code,omitempty"`
	Recommendation string             `json:"recommendation"`
	IssuedOn       Date               `json:"issued_on"`
	FollowUpOn     Date               `json:"follow_up_on"`
	Status         PrescriptionStatus `json:"status"`
	ActionItems    []ActionItem       `json:"action_items"`
}

// TotalCost sums the estimated cost of every action item.
func (p Prescription) TotalCost() float64 {
	var total float64
	for _, item := range p.ActionItems {
		total += item.EstimatedCost
	}
	return total
}

// ActionItem is one concrete instruction within a Prescription.
type ActionItem struct {
	ID             int64    `json:"id"`
	PrescriptionID string   `json:"prescription_id"`
	Category       Category `json:"category"`
	ProductName    string   `json:"product_name"`
	Dosage         string   `json:"dosage"`
	EstimatedCost  float64  `json:"estimated_cost"`
	SortOrder      int      `json:"sort_order"`
}

// FlattenPrescriptions returns the prescriptions attached to consultations,
// in consultation order.
func FlattenPrescriptions(consultations []Consultation) []Prescription {
	out := make([]Prescription, 0, len(consultations))
	for _, c := range consultations {
		if c.Prescription != nil {
			out = append(out, *c.Prescription)
		}
	}
	return out
}
