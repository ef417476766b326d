package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyOrchardID indicates the orchard id is required.
	ErrEmptyOrchardID = errors.New("orchard id is required")
	// ErrEmptyDoctorID indicates a doctor id is required.
	ErrEmptyDoctorID = errors.New("doctor id is required")
	// ErrEmptyConsultationID indicates a consultation id is required.
	ErrEmptyConsultationID = errors.New("consultation id is required")
	// ErrInvalidConsultType indicates the modality is unsupported.
	ErrInvalidConsultType = errors.New("consult type is invalid")
	// ErrInvalidCategory indicates an action item category is unsupported.
	ErrInvalidCategory = errors.New("action item category is invalid")
	// ErrNegativeCost indicates an estimated cost below zero or not finite.
	ErrNegativeCost = errors.New("estimated cost must be a non-negative number")
	// ErrEmptyProductName indicates an action item has no product or action name.
	ErrEmptyProductName = errors.New("action item product name is required")
	// ErrNoActionItems indicates strict issuance received an empty item list.
	ErrNoActionItems = errors.New("at least one action item is required")
	// ErrEmptyDiagnosis indicates strict issuance received no diagnosis.
	ErrEmptyDiagnosis = errors.New("diagnosed issue is required")
	// ErrEmptyRecommendation indicates strict issuance received no recommendation.
	ErrEmptyRecommendation = errors.New("recommendation is required")
	// ErrMissingFollowUp indicates strict issuance received no follow-up date.
	ErrMissingFollowUp = errors.New("follow-up date is required")
)

// NewConsultation carries the fields written when a consultation is created.
// Status is not part of the input; the store forces REQUESTED.
type NewConsultation struct {
	ID          string
	OrchardID   string
	GrowerName  string
	GrowerPhone string
	DoctorID    string
	Type        ConsultType
	TargetAt    *time.Time
	Notes       string
	CreatedAt   time.Time
}

// ConsultationUpdate changes a consultation's status and optionally its doctor.
// When From is non-empty the update applies only if the current status is in
// From.
type ConsultationUpdate struct {
	ID       string
	Status   ConsultationStatus
	DoctorID string
	From     []ConsultationStatus
}

// NewPrescription carries the fields written at issuance.
// Status is not part of the input; the store forces PENDING.
type NewPrescription struct {
	ID             string
	ConsultationID string
	DoctorName     string
	HospitalName   string
	IssueDiagnosed string
	EPPOCode       string
	Recommendation string
	IssuedOn       Date
	FollowUpOn     Date
	// CreatedAt is stamped by the engine clock. Zero means now.
	CreatedAt time.Time
}

// ActionItemInput is one caller-supplied action item. Its position in the
// submitted slice becomes its sort order.
type ActionItemInput struct {
	Category      Category `json:"category" yaml:"category"`
	ProductName   string   `json:"product_name" yaml:"product_name"`
	Dosage        string   `json:"dosage" yaml:"dosage"`
	EstimatedCost float64  `json:"estimated_cost" yaml:"estimated_cost"`
}

// PrescriptionUpdate changes a prescription's status. When From is non-empty
// the update applies only if the current status is in From.
type PrescriptionUpdate struct {
	ID     string
	Status PrescriptionStatus
	From   []PrescriptionStatus
}

// CleanText trims surrounding whitespace and applies NFC normalization.
func CleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeNewConsultation cleans free text and validates structural fields.
func NormalizeNewConsultation(in NewConsultation) (NewConsultation, error) {
	in.OrchardID = strings.TrimSpace(in.OrchardID)
	in.DoctorID = strings.TrimSpace(in.DoctorID)
	in.GrowerName = CleanText(in.GrowerName)
	in.GrowerPhone = strings.TrimSpace(in.GrowerPhone)
	in.Notes = CleanText(in.Notes)
	in.Type = ConsultType(strings.ToUpper(strings.TrimSpace(string(in.Type))))

	if in.OrchardID == "" {
		return NewConsultation{}, ErrEmptyOrchardID
	}
	if in.DoctorID == "" {
		return NewConsultation{}, ErrEmptyDoctorID
	}
	if !in.Type.Valid() {
		return NewConsultation{}, fmt.Errorf("%w: %q", ErrInvalidConsultType, in.Type)
	}
	return in, nil
}

// NormalizeNewPrescription cleans the free-text fields of a prescription.
// With strict set it also requires a diagnosis, a recommendation and a
// follow-up date.
func NormalizeNewPrescription(in NewPrescription, strict bool) (NewPrescription, error) {
	in.ConsultationID = strings.TrimSpace(in.ConsultationID)
	in.DoctorName = CleanText(in.DoctorName)
	in.HospitalName = CleanText(in.HospitalName)
	in.IssueDiagnosed = CleanText(in.IssueDiagnosed)
	in.EPPOCode = strings.ToUpper(strings.TrimSpace(in.EPPOCode))
	in.Recommendation = CleanText(in.Recommendation)

	if in.ConsultationID == "" {
		return NewPrescription{}, ErrEmptyConsultationID
	}
	if !strict {
		return in, nil
	}
	if in.IssueDiagnosed == "" {
		return NewPrescription{}, ErrEmptyDiagnosis
	}
	if in.Recommendation == "" {
		return NewPrescription{}, ErrEmptyRecommendation
	}
	if in.FollowUpOn.IsZero() {
		return NewPrescription{}, ErrMissingFollowUp
	}
	return in, nil
}

// NormalizeActionItems cleans and validates each item, preserving order.
// Category and cost are always checked. With strict set an empty list is
// rejected.
func NormalizeActionItems(items []ActionItemInput, strict bool) ([]ActionItemInput, error) {
	if strict && len(items) == 0 {
		return nil, ErrNoActionItems
	}
	out := make([]ActionItemInput, len(items))
	for i, item := range items {
		item.Category = Category(strings.ToUpper(strings.TrimSpace(string(item.Category))))
		item.ProductName = CleanText(item.ProductName)
		item.Dosage = CleanText(item.Dosage)

		if !item.Category.Valid() {
			return nil, fmt.Errorf("item %d: %w: %q", i, ErrInvalidCategory, item.Category)
		}
		if item.ProductName == "" {
			return nil, fmt.Errorf("item %d: %w", i, ErrEmptyProductName)
		}
		if item.EstimatedCost < 0 || math.IsNaN(item.EstimatedCost) || math.IsInf(item.EstimatedCost, 0) {
			return nil, fmt.Errorf("item %d: %w", i, ErrNegativeCost)
		}
		out[i] = item
	}
	return out, nil
}
