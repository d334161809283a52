package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store) (*models.User, *models.Course) {
	t.Helper()
	ctx := context.Background()

	student := &models.User{Name: "Ada", Email: "ada@example.com", Role: models.RoleStudent}
	require.NoError(t, s.Users().Create(ctx, student))

	course := &models.Course{
		Title:     "Go",
		Price:     499,
		CreatorID: student.ID,
		Lectures: []models.Lecture{
			{Title: "one", Position: 1, IsPreviewFree: true},
			{Title: "two", Position: 2},
		},
	}
	require.NoError(t, s.Courses().Create(ctx, course))
	return student, course
}

func pendingPurchase(t *testing.T, s *Store, userID, courseID uint, sessionID string) *models.Purchase {
	t.Helper()
	ctx := context.Background()

	p := &models.Purchase{UserID: userID, CourseID: courseID, Amount: 499, Status: models.PurchaseStatusPending}
	require.NoError(t, s.Purchases().Create(ctx, p))
	require.NoError(t, s.Purchases().AttachSession(ctx, p.ID, sessionID))
	return p
}

func TestCompletePurchase_GrantsEntitlementsOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)
	pendingPurchase(t, s, student.ID, course.ID, "cs_1")

	amount := 520.0
	p, transitioned, err := s.Entitlements().CompletePurchase(ctx, "cs_1", &amount)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, models.PurchaseStatusCompleted, p.Status)
	assert.Equal(t, 520.0, p.Amount)

	p, transitioned, err = s.Entitlements().CompletePurchase(ctx, "cs_1", nil)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, 520.0, p.Amount)

	got, err := s.Courses().GetByID(ctx, course.ID)
	require.NoError(t, err)
	for _, l := range got.Lectures {
		assert.True(t, l.IsPreviewFree, l.Title)
	}

	ids, err := s.Courses().EnrolledStudentIDs(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{student.ID}, ids)

	user, err := s.Users().GetByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{course.ID}, user.EnrolledCourseIDs())
}

func TestCompletePurchase_UnknownSession(t *testing.T) {
	s := NewStore()

	p, _, err := s.Entitlements().CompletePurchase(context.Background(), "cs_missing", nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, p)
}

func TestCompletePurchase_SecondCompletedPurchaseRejected(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)
	pendingPurchase(t, s, student.ID, course.ID, "cs_1")
	second := pendingPurchase(t, s, student.ID, course.ID, "cs_2")

	_, _, err := s.Entitlements().CompletePurchase(ctx, "cs_1", nil)
	require.NoError(t, err)

	p, transitioned, err := s.Entitlements().CompletePurchase(ctx, "cs_2", nil)
	assert.ErrorIs(t, err, repository.ErrDuplicateEntitlement)
	assert.False(t, transitioned)
	require.NotNil(t, p)
	assert.Equal(t, second.ID, p.ID)
}

func TestCompletePurchase_ConcurrentDeliveriesTransitionOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)
	pendingPurchase(t, s, student.ID, course.ID, "cs_1")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, transitioned, err := s.Entitlements().CompletePurchase(ctx, "cs_1", nil)
			assert.NoError(t, err)
			if transitioned {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, count)
	ids, err := s.Courses().EnrolledStudentIDs(ctx, course.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestAttachSession_OnlyOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)
	p := pendingPurchase(t, s, student.ID, course.ID, "cs_1")

	assert.ErrorIs(t, s.Purchases().AttachSession(ctx, p.ID, "cs_other"), repository.ErrNotFound)

	got, err := s.Purchases().GetBySessionID(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestPurchases_SessionBoundOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)
	pendingPurchase(t, s, student.ID, course.ID, "cs_1")

	session := "cs_1"
	err := s.Purchases().Create(ctx, &models.Purchase{UserID: student.ID, CourseID: course.ID, PaymentSessionID: &session})
	assert.ErrorIs(t, err, repository.ErrDuplicateSession)
	assert.NotErrorIs(t, err, repository.ErrDuplicateEntitlement)

	other := &models.Purchase{UserID: student.ID, CourseID: course.ID}
	require.NoError(t, s.Purchases().Create(ctx, other))
	assert.ErrorIs(t, s.Purchases().AttachSession(ctx, other.ID, "cs_1"), repository.ErrDuplicateSession)
}

func TestMarkFailed_OnlyPending(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)
	pendingPurchase(t, s, student.ID, course.ID, "cs_1")

	_, _, err := s.Entitlements().CompletePurchase(ctx, "cs_1", nil)
	require.NoError(t, err)

	changed, err := s.Purchases().MarkFailedBySession(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.Purchases().MarkFailedBySession(ctx, "cs_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListByUser_NewestFirstWithCourse(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)
	first := pendingPurchase(t, s, student.ID, course.ID, "cs_1")
	second := pendingPurchase(t, s, student.ID, course.ID, "cs_2")

	purchases, err := s.Purchases().ListByUser(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	assert.Equal(t, second.ID, purchases[0].ID)
	assert.Equal(t, first.ID, purchases[1].ID)
	require.NotNil(t, purchases[0].Course)
	assert.Equal(t, "Go", purchases[0].Course.Title)
}

func TestListMissingEntitlements(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)

	completed := &models.Purchase{UserID: student.ID, CourseID: course.ID, Amount: 499, Status: models.PurchaseStatusCompleted}
	require.NoError(t, s.Purchases().Create(ctx, completed))

	missing, err := s.Entitlements().ListMissingEntitlements(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, completed.ID, missing[0].ID)

	require.NoError(t, s.Entitlements().GrantEntitlements(ctx, &missing[0]))

	missing, err = s.Entitlements().ListMissingEntitlements(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestMarkLectureViewed_RecomputesCompletion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)

	p, err := s.Progress().MarkLectureViewed(ctx, student.ID, course.ID, course.Lectures[0].ID)
	require.NoError(t, err)
	assert.False(t, p.Completed)
	assert.Len(t, p.LectureProgress, 1)

	p, err = s.Progress().MarkLectureViewed(ctx, student.ID, course.ID, course.Lectures[0].ID)
	require.NoError(t, err)
	assert.Len(t, p.LectureProgress, 1)

	p, err = s.Progress().MarkLectureViewed(ctx, student.ID, course.ID, course.Lectures[1].ID)
	require.NoError(t, err)
	assert.True(t, p.Completed)
}

func TestMarkLectureViewed_ConcurrentViewsKeepOneEntryEach(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, l := range course.Lectures {
			wg.Add(1)
			go func(lectureID uint) {
				defer wg.Done()
				_, err := s.Progress().MarkLectureViewed(ctx, student.ID, course.ID, lectureID)
				assert.NoError(t, err)
			}(l.ID)
		}
	}
	wg.Wait()

	p, err := s.Progress().Get(ctx, student.ID, course.ID)
	require.NoError(t, err)
	assert.Len(t, p.LectureProgress, 2)
	assert.True(t, p.Completed)
}

func TestSetAllViewed(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	student, course := seed(t, s)

	_, err := s.Progress().SetAllViewed(ctx, student.ID, course.ID, true)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Progress().MarkLectureViewed(ctx, student.ID, course.ID, course.Lectures[0].ID)
	require.NoError(t, err)

	p, err := s.Progress().SetAllViewed(ctx, student.ID, course.ID, false)
	require.NoError(t, err)
	assert.False(t, p.Completed)
	for _, entry := range p.LectureProgress {
		assert.False(t, entry.Viewed)
	}

	p, err = s.Progress().SetAllViewed(ctx, student.ID, course.ID, true)
	require.NoError(t, err)
	assert.True(t, p.Completed)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, course := seed(t, s)

	got, err := s.Courses().GetByID(ctx, course.ID)
	require.NoError(t, err)
	got.Lectures[1].IsPreviewFree = true
	got.Title = "changed"

	again, err := s.Courses().GetByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go", again.Title)
	assert.False(t, again.Lectures[1].IsPreviewFree)
}

func TestSeedDemoData_RunsOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, repository.SeedDemoData(ctx, s.Users(), s.Courses()))
	require.NoError(t, repository.SeedDemoData(ctx, s.Users(), s.Courses()))

	count, err := s.Courses().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
