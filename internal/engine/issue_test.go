package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orchard/internal/archive"
	"github.com/roach88/orchard/internal/domain"
	"github.com/roach88/orchard/internal/store"
	"github.com/roach88/orchard/internal/testutil"
)

func sampleIssue(consultationID string) IssueInput {
	return IssueInput{
		ConsultationID: consultationID,
		IssueDiagnosed: "Apple scab",
		EPPOCode:       "ventin",
		Recommendation: "Spray before the next rain and clear fallen leaves.",
		FollowUpOn:     domain.MustDate("2026-10-15"),
		ActionItems: []domain.ActionItemInput{
			{Category: domain.CategoryFungicide, ProductName: "Captan 50 WP", Dosage: "2 g/L", EstimatedCost: 450},
			{Category: domain.CategoryLabor, ProductName: "Spray crew", Dosage: "2 workers, half day", EstimatedCost: 800},
			{Category: domain.CategoryOther, ProductName: "Leaf collection", EstimatedCost: 0},
		},
	}
}

func TestEngine_Issue(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	c := requestAndAccept(t, e)

	res, err := e.Issue(ctx, sampleIssue(c.ID))
	require.NoError(t, err)

	p := res.Prescription
	assert.Equal(t, "id-0002", p.ID)
	assert.Equal(t, c.ID, p.ConsultationID)
	assert.Equal(t, domain.PrescriptionPending, p.Status)
	assert.Equal(t, "VENTIN", p.EPPOCode)
	assert.Equal(t, "2026-10-01", p.IssuedOn.String())
	assert.Equal(t, "2026-10-15", p.FollowUpOn.String())
	assert.Equal(t, "Dr. Meera Kaul", p.DoctorName, "doctor name defaults from the roster")
	assert.Equal(t, "Valley Plant Clinic", p.HospitalName)

	require.Len(t, p.ActionItems, 3)
	for i, item := range p.ActionItems {
		assert.Equal(t, i, item.SortOrder)
		assert.Equal(t, p.ID, item.PrescriptionID)
	}
	assert.Equal(t, "Captan 50 WP", p.ActionItems[0].ProductName)
	assert.Equal(t, "Spray crew", p.ActionItems[1].ProductName)
	assert.Equal(t, "Leaf collection", p.ActionItems[2].ProductName)
	assert.InDelta(t, 1250.0, p.TotalCost(), 1e-9)

	assert.Equal(t, domain.ConsultationCompleted, res.Consultation.Status)
	require.NotNil(t, res.Consultation.Prescription)
	assert.Equal(t, p.ID, res.Consultation.Prescription.ID)

	stored, err := s.GetConsultation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationCompleted, stored.Status)
	require.NotNil(t, stored.Prescription)
	assert.Equal(t, p, *stored.Prescription)
}

func TestEngine_Issue_CreatedAtFromClock(t *testing.T) {
	e, s := newTestEngine(t)
	c := requestAndAccept(t, e)

	res, err := e.Issue(context.Background(), sampleIssue(c.ID))
	require.NoError(t, err)

	// Request reads the clock first, Issue second.
	var createdAt int64
	err = s.DB().QueryRow("SELECT created_at FROM prescriptions WHERE id = ?", res.Prescription.ID).Scan(&createdAt)
	require.NoError(t, err)
	assert.Equal(t, testutil.DefaultBase.Add(time.Minute).UnixMilli(), createdAt)
}

func TestEngine_Issue_DispatchMatchesPrescription(t *testing.T) {
	e, _ := newTestEngine(t)
	c := requestAndAccept(t, e)

	res, err := e.Issue(context.Background(), sampleIssue(c.ID))
	require.NoError(t, err)

	assert.Contains(t, res.Dispatch, "*Valley Plant Clinic*")
	assert.Contains(t, res.Dispatch, "Grower: Asha Rao (+91 98000 00001)")
	assert.Contains(t, res.Dispatch, "Diagnosis: Apple scab [EPPO: VENTIN]")
	assert.Contains(t, res.Dispatch, "3. [OTHER] Leaf collection - Rs. 0.00")
	assert.Contains(t, res.Dispatch, "Total estimated cost: Rs. 1,250.00")
	assert.Contains(t, res.Dispatch, "Follow-up: 2026-10-15")
	assert.Empty(t, res.ArchiveKey, "no archive configured")
	assert.NoError(t, res.ArchiveErr)
}

func TestEngine_Issue_ExplicitIssuerWins(t *testing.T) {
	e, _ := newTestEngine(t)
	c := requestAndAccept(t, e)

	in := sampleIssue(c.ID)
	in.DoctorName = "Dr. Visiting Expert"
	in.HospitalName = "Regional Lab"
	res, err := e.Issue(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Visiting Expert", res.Prescription.DoctorName)
	assert.Equal(t, "Regional Lab", res.Prescription.HospitalName)
}

func TestEngine_Issue_RequiresInProgress(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	c, err := e.Request(ctx, sampleRequest())
	require.NoError(t, err)

	_, err = e.Issue(ctx, sampleIssue(c.ID))
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err), "got %v", err)

	stored, err := s.GetConsultation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationRequested, stored.Status)
	assert.Nil(t, stored.Prescription)
}

func TestEngine_Issue_NotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Issue(context.Background(), sampleIssue("missing"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestEngine_Issue_SecondIssueRejected(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	c := requestAndAccept(t, e)

	first, err := e.Issue(ctx, sampleIssue(c.ID))
	require.NoError(t, err)

	_, err = e.Issue(ctx, sampleIssue(c.ID))
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err), "got %v", err)

	stored, err := s.GetConsultation(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Prescription)
	assert.Equal(t, first.Prescription.ID, stored.Prescription.ID)
}

func TestEngine_Issue_ConcurrentRaceHasOneWinner(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	c := requestAndAccept(t, e)

	const racers = 4
	var wg sync.WaitGroup
	results := make([]error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = e.Issue(ctx, sampleIssue(c.ID))
		}(i)
	}
	close(start)
	wg.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, IsInvalidTransition(err), "loser must see INVALID_TRANSITION, got %v", err)
	}
	assert.Equal(t, 1, wins)

	stored, err := s.GetConsultation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationCompleted, stored.Status)
	require.NotNil(t, stored.Prescription)
	assert.Len(t, stored.Prescription.ActionItems, 3)

	var rows int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM prescriptions WHERE consultation_id = ?`, c.ID).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestEngine_Issue_PermissiveAcceptsEmptyItems(t *testing.T) {
	e, _ := newTestEngine(t)
	c := requestAndAccept(t, e)

	in := sampleIssue(c.ID)
	in.ActionItems = nil
	in.IssueDiagnosed = ""
	in.FollowUpOn = domain.Date{}
	res, err := e.Issue(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.Prescription.ActionItems)
	assert.Zero(t, res.Prescription.TotalCost())
	assert.Contains(t, res.Dispatch, "Action items: none")
	assert.Contains(t, res.Dispatch, "Follow-up: not scheduled")
}

func TestEngine_Issue_StrictRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IssueInput)
		want   error
	}{
		{"no items", func(in *IssueInput) { in.ActionItems = nil }, domain.ErrNoActionItems},
		{"no diagnosis", func(in *IssueInput) { in.IssueDiagnosed = "  " }, domain.ErrEmptyDiagnosis},
		{"no recommendation", func(in *IssueInput) { in.Recommendation = "" }, domain.ErrEmptyRecommendation},
		{"no follow-up", func(in *IssueInput) { in.FollowUpOn = domain.Date{} }, domain.ErrMissingFollowUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := newTestEngine(t, WithStrictIssue())
			c := requestAndAccept(t, e)
			in := sampleIssue(c.ID)
			tt.mutate(&in)

			_, err := e.Issue(context.Background(), in)
			require.Error(t, err)
			assert.True(t, IsValidationFailure(err), "got %v", err)
			assert.ErrorIs(t, err, tt.want)

			stored, err := s.GetConsultation(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.ConsultationInProgress, stored.Status)
		})
	}
}

func TestEngine_Issue_ItemValidationAlwaysApplies(t *testing.T) {
	tests := []struct {
		name string
		item domain.ActionItemInput
		want error
	}{
		{"negative cost", domain.ActionItemInput{Category: domain.CategoryLabor, ProductName: "Crew", EstimatedCost: -1}, domain.ErrNegativeCost},
		{"unknown category", domain.ActionItemInput{Category: "MAGIC", ProductName: "Wand", EstimatedCost: 1}, domain.ErrInvalidCategory},
		{"missing product", domain.ActionItemInput{Category: domain.CategoryFertilizer, EstimatedCost: 1}, domain.ErrEmptyProductName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			c := requestAndAccept(t, e)
			in := sampleIssue(c.ID)
			in.ActionItems = append(in.ActionItems, tt.item)

			_, err := e.Issue(context.Background(), in)
			require.Error(t, err)
			assert.True(t, IsValidationFailure(err), "got %v", err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// failingItemsStore fails the action item insert after the prescription row
// has been written.
type failingItemsStore struct {
	*store.Store
}

func (failingItemsStore) InsertActionItems(context.Context, string, []domain.ActionItemInput) error {
	return errors.New("disk I/O error")
}

func TestEngine_Issue_RollsBackOnStoreFailure(t *testing.T) {
	s := setupTestStore(t)
	e := New(failingItemsStore{s}, WithDirectory(testDoctors))
	ctx := context.Background()

	c, err := e.Request(ctx, sampleRequest())
	require.NoError(t, err)
	_, err = e.Accept(ctx, c.ID, "DR001")
	require.NoError(t, err)

	_, err = e.Issue(ctx, sampleIssue(c.ID))
	require.Error(t, err)
	assert.True(t, IsStoreFailure(err), "got %v", err)
	assert.Contains(t, err.Error(), "disk I/O error", "native message is preserved")

	stored, err := s.GetConsultation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationInProgress, stored.Status)
	assert.Nil(t, stored.Prescription, "prescription insert must roll back")

	var rows int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM prescriptions`).Scan(&rows))
	assert.Zero(t, rows)
}

func TestEngine_Issue_ArchivesDispatch(t *testing.T) {
	mem := archive.NewMemory()
	e, _ := newTestEngine(t, WithArchive(mem))
	ctx := context.Background()
	c := requestAndAccept(t, e)

	res, err := e.Issue(ctx, sampleIssue(c.ID))
	require.NoError(t, err)
	require.NoError(t, res.ArchiveErr)
	assert.Equal(t, "dispatch/orch-1/id-0002.txt", res.ArchiveKey)

	body, err := archive.ReadAll(ctx, mem, res.ArchiveKey)
	require.NoError(t, err)
	assert.Equal(t, res.Dispatch, string(body))

	info, rc, err := mem.Get(ctx, res.ArchiveKey)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, c.ID, info.Metadata["consultation"])
}

type brokenArchive struct{ archive.Store }

func (brokenArchive) Put(context.Context, string, io.Reader, archive.PutOptions) (archive.Info, error) {
	return archive.Info{}, errors.New("bucket unreachable")
}

func TestEngine_Issue_ArchiveFailureIsNotFatal(t *testing.T) {
	e, s := newTestEngine(t, WithArchive(brokenArchive{archive.NewMemory()}))
	ctx := context.Background()
	c := requestAndAccept(t, e)

	res, err := e.Issue(ctx, sampleIssue(c.ID))
	require.NoError(t, err)
	require.Error(t, res.ArchiveErr)
	assert.True(t, strings.Contains(res.ArchiveErr.Error(), "bucket unreachable"))
	assert.Empty(t, res.ArchiveKey)

	stored, err := s.GetConsultation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsultationCompleted, stored.Status)
}
