package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/Uebook/Luna-sub002/pkg/errors"
	"github.com/Uebook/Luna-sub002/pkg/pagination"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/catalog"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/domain"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/repository/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixedCatalog struct {
	c domain.Catalog
}

func (f fixedCatalog) Current() domain.Catalog { return f.c }

func testCatalog() domain.Catalog {
	return catalog.New(catalog.Data{Categories: catalog.Categories{
		{Name: "Fashion", CategoryData: catalog.CategoryData{
			Subcats: []catalog.Subcategory{{T: "Kurta"}, {T: "Saree"}},
			Deals: []catalog.Item{
				{ID: "1", Title: "Cotton Kurta", Price: "₹799"},
				{ID: "2", Title: "Linen Kurta", Price: "₹1,299"},
				{ID: "3", Title: "Block Print Kurta", Price: "₹999"},
				{ID: "4", Title: "Silk Saree", Price: "₹2,999"},
			},
		}},
		{Name: "Mobile"},
	}})
}

func newTestService(ttl time.Duration) *AssistantService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAssistantService(memory.NewSessionRepository(ttl), fixedCatalog{c: testCatalog()}, ttl, logger)
}

func reply(t *testing.T, svc *AssistantService, owner, id, text string) *ReplyResult {
	t.Helper()
	res, err := svc.Reply(context.Background(), owner, id, text)
	require.NoError(t, err)
	return res
}

// ---- StartSession ----

func TestStartSession_DefaultsToProductSearch(t *testing.T) {
	svc := newTestService(time.Hour)

	v, err := svc.StartSession(context.Background(), "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, domain.FlowProductSearch, v.Flow)
	assert.Equal(t, domain.StepCategory, v.Step)
	require.Len(t, v.Transcript, 1)
	assert.Equal(t, []string{"Fashion", "Mobile"}, v.Transcript[0].Chips)
}

func TestStartSession_UnknownFlow(t *testing.T) {
	svc := newTestService(time.Hour)

	_, err := svc.StartSession(context.Background(), "", "smalltalk")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// ---- Reply ----

func TestReply_ProductSearchToResults(t *testing.T) {
	svc := newTestService(time.Hour)
	ctx := context.Background()
	v, err := svc.StartSession(ctx, "user-1", "product_search")
	require.NoError(t, err)

	res := reply(t, svc, "user-1", v.ID, "fashion")
	assert.True(t, res.Advanced)
	assert.Equal(t, domain.StepSubcategory, res.Session.Step)

	res = reply(t, svc, "user-1", v.ID, "Lehenga")
	assert.False(t, res.Advanced)
	assert.Equal(t, domain.StepSubcategory, res.Session.Step)

	reply(t, svc, "user-1", v.ID, "Kurta")
	res = reply(t, svc, "user-1", v.ID, "₹1,000")
	assert.True(t, res.Session.Done)
	assert.Equal(t, 2, res.Session.ResultCount)
	assert.Equal(t, domain.SearchAnswers{
		Category:    "Fashion",
		Subcategory: "Kurta",
		Budget:      1000,
		Summary:     "Category: Fashion • Sub-category: Kurta • Budget: ₹1,000",
	}, res.Session.Answers)
	require.Len(t, res.Messages, 3)

	_, err = svc.Reply(ctx, "user-1", v.ID, "Mobile")
	assert.ErrorIs(t, err, domain.ErrFlowFinished)
}

func TestReply_OwnerMismatchIsNotFound(t *testing.T) {
	svc := newTestService(time.Hour)
	ctx := context.Background()
	v, err := svc.StartSession(ctx, "user-1", "support")
	require.NoError(t, err)

	_, err = svc.Reply(ctx, "user-2", v.ID, "Other")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := svc.GetSession(ctx, "user-1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepIssue, got.Step)
}

func TestReply_AnonymousSessionReachableByID(t *testing.T) {
	svc := newTestService(time.Hour)
	v, err := svc.StartSession(context.Background(), "", "support")
	require.NoError(t, err)

	res := reply(t, svc, "user-9", v.ID, "Payment Issues")
	assert.Equal(t, domain.StepDescribe, res.Session.Step)
}

func TestReply_EmptyText(t *testing.T) {
	svc := newTestService(time.Hour)
	v, err := svc.StartSession(context.Background(), "", "")
	require.NoError(t, err)

	_, err = svc.Reply(context.Background(), "", v.ID, " ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// ---- Results ----

func TestResults_Paginates(t *testing.T) {
	svc := newTestService(time.Hour)
	ctx := context.Background()
	v, err := svc.StartSession(ctx, "", "")
	require.NoError(t, err)

	_, err = svc.Results(ctx, "", v.ID, pagination.DefaultParams())
	assert.ErrorIs(t, err, ErrResultsNotReady)

	reply(t, svc, "", v.ID, "Fashion")
	reply(t, svc, "", v.ID, "kurta")
	reply(t, svc, "", v.ID, "5000")

	page, err := svc.Results(ctx, "", v.ID, pagination.Params{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Block Print Kurta", page.Data[0].Title)
	assert.True(t, page.HasPrev)
}

func TestResults_SupportHasNone(t *testing.T) {
	svc := newTestService(time.Hour)
	v, err := svc.StartSession(context.Background(), "", "support")
	require.NoError(t, err)

	_, err = svc.Results(context.Background(), "", v.ID, pagination.DefaultParams())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// ---- EndSession and expiry ----

func TestEndSession(t *testing.T) {
	svc := newTestService(time.Hour)
	ctx := context.Background()
	v, err := svc.StartSession(ctx, "user-1", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.EndSession(ctx, "user-2", v.ID), apperrors.ErrNotFound)
	require.NoError(t, svc.EndSession(ctx, "user-1", v.ID))

	_, err = svc.GetSession(ctx, "user-1", v.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCleanIdleSessions(t *testing.T) {
	svc := newTestService(time.Minute)
	ctx := context.Background()
	_, err := svc.StartSession(ctx, "", "")
	require.NoError(t, err)

	removed, err := svc.CleanIdleSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	removed, err = svc.CleanIdleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newTestService(time.Millisecond)
	_, err := svc.StartSession(context.Background(), "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.RunSweeper(ctx, time.Millisecond) }()

	require.Eventually(t, func() bool {
		n, _ := svc.repo.Count(context.Background())
		return n == 0
	}, time.Second, 2*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestCategories(t *testing.T) {
	svc := newTestService(time.Hour)
	assert.Equal(t, []string{"Fashion", "Mobile"}, svc.Categories())

	svc.catalogs = fixedCatalog{c: catalog.New(catalog.Data{})}
	assert.Equal(t, domain.DefaultCategories, svc.Categories())
}
