package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orchard/internal/domain"
)

func TestInsertConsultation_ForcesRequested(t *testing.T) {
	s := createTestStore(t)
	target := time.Date(2026, 10, 3, 10, 30, 0, 0, time.UTC)

	c, err := s.InsertConsultation(context.Background(), domain.NewConsultation{
		ID:        "c-1",
		OrchardID: "orchard-1",
		DoctorID:  "DR001",
		Type:      domain.ConsultOnsiteVisit,
		TargetAt:  &target,
		CreatedAt: baseTime,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ConsultationRequested, c.Status)
	assert.Equal(t, "DR001", c.DoctorID)
	assert.Equal(t, domain.ConsultOnsiteVisit, c.Type)
	require.NotNil(t, c.TargetAt)
	assert.True(t, target.Equal(*c.TargetAt))
	assert.True(t, baseTime.Equal(c.CreatedAt))
	assert.Nil(t, c.Prescription)
}

func TestInsertConsultation_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	createTestConsultation(t, s, "c-1", "orchard-1", 0)

	_, err := s.InsertConsultation(context.Background(), domain.NewConsultation{
		ID: "c-1", OrchardID: "orchard-1", DoctorID: "DR001", Type: domain.ConsultChat, CreatedAt: baseTime,
	})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert consultation", se.Op)
	assert.NotEmpty(t, se.Code)
	assert.NotEmpty(t, se.Message)
}

func TestGetConsultation_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetConsultation(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestListConsultations_NewestFirstScopedToOrchard(t *testing.T) {
	s := createTestStore(t)
	createTestConsultation(t, s, "c-1", "orchard-1", 0)
	createTestConsultation(t, s, "c-2", "orchard-1", 10)
	createTestConsultation(t, s, "c-3", "orchard-1", 5)
	createTestConsultation(t, s, "other", "orchard-2", 20)

	list, err := s.ListConsultations(context.Background(), "orchard-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c-2", list[0].ID)
	assert.Equal(t, "c-3", list[1].ID)
	assert.Equal(t, "c-1", list[2].ID)
}

func TestListConsultations_Empty(t *testing.T) {
	s := createTestStore(t)

	list, err := s.ListConsultations(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestListConsultations_NestsPrescriptionAndOrderedItems(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestConsultation(t, s, "c-1", "orchard-1", 0)
	createTestConsultation(t, s, "c-2", "orchard-1", 1)

	_, err := s.InsertPrescription(ctx, testPrescription("rx-1", "c-1"))
	require.NoError(t, err)
	require.NoError(t, s.InsertActionItems(ctx, "rx-1", testItems()))

	list, err := s.ListConsultations(ctx, "orchard-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Nil(t, list[0].Prescription, "c-2 has no prescription")
	rx := list[1].Prescription
	require.NotNil(t, rx)
	assert.Equal(t, "rx-1", rx.ID)
	require.Len(t, rx.ActionItems, 3)
	for i, item := range rx.ActionItems {
		assert.Equal(t, i, item.SortOrder)
		assert.Equal(t, testItems()[i].ProductName, item.ProductName)
	}
}

func TestUpdateConsultationStatus_RestampsDoctor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestConsultation(t, s, "c-1", "orchard-1", 0)

	err := s.UpdateConsultationStatus(ctx, domain.ConsultationUpdate{
		ID:       "c-1",
		Status:   domain.ConsultationInProgress,
		DoctorID: "DR002",
		From:     []domain.ConsultationStatus{domain.ConsultationRequested},
	})
	require.NoError(t, err)

	c, err := s.GetConsultation(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationInProgress, c.Status)
	assert.Equal(t, "DR002", c.DoctorID)
}

func TestUpdateConsultationStatus_KeepsDoctorWhenEmpty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestConsultation(t, s, "c-1", "orchard-1", 0)

	require.NoError(t, s.UpdateConsultationStatus(ctx, domain.ConsultationUpdate{
		ID: "c-1", Status: domain.ConsultationInProgress,
	}))

	c, err := s.GetConsultation(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "DR001", c.DoctorID)
}

func TestUpdateConsultationStatus_CompareAndSetConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestConsultation(t, s, "c-1", "orchard-1", 0)

	err := s.UpdateConsultationStatus(ctx, domain.ConsultationUpdate{
		ID:     "c-1",
		Status: domain.ConsultationCompleted,
		From:   []domain.ConsultationStatus{domain.ConsultationInProgress},
	})
	require.Error(t, err)
	assert.True(t, IsStatusConflict(err))
	assert.Contains(t, err.Error(), "REQUESTED")

	c, err := s.GetConsultation(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationRequested, c.Status, "status must be unchanged")
}

func TestUpdateConsultationStatus_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.UpdateConsultationStatus(context.Background(), domain.ConsultationUpdate{
		ID: "missing", Status: domain.ConsultationInProgress,
	})
	assert.True(t, IsNotFound(err))
}
