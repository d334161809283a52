// Package memory provides an in-process implementation of the repository
// interfaces. All state sits behind one mutex, so every method is atomic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/repository"
)

type pair struct {
	userID   uint
	courseID uint
}

type Store struct {
	mu sync.Mutex

	nextID uint

	users     map[uint]*models.User
	courses   map[uint]*models.Course
	lectures  map[uint]*models.Lecture
	purchases map[uint]*models.Purchase
	progress  map[pair]*models.CourseProgress

	userCourses    map[pair]struct{}
	courseStudents map[pair]struct{}
}

func NewStore() *Store {
	return &Store{
		users:          make(map[uint]*models.User),
		courses:        make(map[uint]*models.Course),
		lectures:       make(map[uint]*models.Lecture),
		purchases:      make(map[uint]*models.Purchase),
		progress:       make(map[pair]*models.CourseProgress),
		userCourses:    make(map[pair]struct{}),
		courseStudents: make(map[pair]struct{}),
	}
}

func (s *Store) Users() *UserRepository { return &UserRepository{s} }
func (s *Store) Courses() *CourseRepository { return &CourseRepository{s} }
func (s *Store) Purchases() *PurchaseRepository { return &PurchaseRepository{s} }
func (s *Store) Entitlements() *EntitlementStore { return &EntitlementStore{s} }
func (s *Store) Progress() *ProgressRepository { return &ProgressRepository{s} }

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

// ---- users ----

type UserRepository struct{ s *Store }

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	user.ID = r.s.id()
	user.CreatedAt, user.UpdatedAt = now, now
	stored := *user
	stored.EnrolledCourses = nil
	r.s.users[user.ID] = &stored
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	copied.EnrolledCourses = []models.Course{}
	for key := range r.s.userCourses {
		if key.userID != id {
			continue
		}
		if course, ok := r.s.courses[key.courseID]; ok {
			c := *course
			c.Lectures = nil
			copied.EnrolledCourses = append(copied.EnrolledCourses, c)
		}
	}
	sort.Slice(copied.EnrolledCourses, func(i, j int) bool {
		return copied.EnrolledCourses[i].ID < copied.EnrolledCourses[j].ID
	})
	return &copied, nil
}

// ---- courses ----

type CourseRepository struct{ s *Store }

var _ repository.CourseRepository = (*CourseRepository)(nil)

func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	course.ID = r.s.id()
	course.CreatedAt, course.UpdatedAt = now, now
	for i := range course.Lectures {
		lecture := &course.Lectures[i]
		lecture.ID = r.s.id()
		lecture.CourseID = course.ID
		lecture.CreatedAt, lecture.UpdatedAt = now, now
		stored := *lecture
		r.s.lectures[lecture.ID] = &stored
	}
	stored := *course
	stored.Lectures = nil
	stored.Creator = nil
	r.s.courses[course.ID] = &stored
	return nil
}

func (r *CourseRepository) Count(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.courses)), nil
}

func (r *CourseRepository) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	course, ok := r.s.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *course
	if creator, ok := r.s.users[course.CreatorID]; ok {
		c := *creator
		c.EnrolledCourses = nil
		copied.Creator = &c
	}
	copied.Lectures = r.s.courseLectures(id)
	return &copied, nil
}

func (r *CourseRepository) HasLecture(ctx context.Context, courseID, lectureID uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lecture, ok := r.s.lectures[lectureID]
	return ok && lecture.CourseID == courseID, nil
}

func (r *CourseRepository) EnrolledStudentIDs(ctx context.Context, courseID uint) ([]uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := []uint{}
	for key := range r.s.courseStudents {
		if key.courseID == courseID {
			ids = append(ids, key.userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// courseLectures returns copies ordered by position then id. Caller holds mu.
func (s *Store) courseLectures(courseID uint) []models.Lecture {
	lectures := []models.Lecture{}
	for _, l := range s.lectures {
		if l.CourseID == courseID {
			lectures = append(lectures, *l)
		}
	}
	sort.Slice(lectures, func(i, j int) bool {
		if lectures[i].Position != lectures[j].Position {
			return lectures[i].Position < lectures[j].Position
		}
		return lectures[i].ID < lectures[j].ID
	})
	return lectures
}

// ---- purchases ----

type PurchaseRepository struct{ s *Store }

var _ repository.PurchaseRepository = (*PurchaseRepository)(nil)

func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if purchase.PaymentSessionID != nil && r.s.purchaseBySession(*purchase.PaymentSessionID) != nil {
		return repository.ErrDuplicateSession
	}
	if purchase.IsCompleted() && r.s.hasCompleted(purchase.UserID, purchase.CourseID) {
		return repository.ErrDuplicateEntitlement
	}

	now := time.Now()
	purchase.ID = r.s.id()
	purchase.CreatedAt, purchase.UpdatedAt = now, now
	if purchase.Status == "" {
		purchase.Status = models.PurchaseStatusPending
	}
	stored := *purchase
	stored.Course = nil
	r.s.purchases[purchase.ID] = &stored
	return nil
}

func (r *PurchaseRepository) AttachSession(ctx context.Context, purchaseID uint, sessionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	purchase, ok := r.s.purchases[purchaseID]
	if !ok || purchase.PaymentSessionID != nil {
		return repository.ErrNotFound
	}
	if r.s.purchaseBySession(sessionID) != nil {
		return repository.ErrDuplicateSession
	}
	id := sessionID
	purchase.PaymentSessionID = &id
	purchase.UpdatedAt = time.Now()
	return nil
}

func (r *PurchaseRepository) MarkFailed(ctx context.Context, purchaseID uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	purchase, ok := r.s.purchases[purchaseID]
	if !ok || purchase.Status != models.PurchaseStatusPending {
		return false, nil
	}
	purchase.Status = models.PurchaseStatusFailed
	purchase.UpdatedAt = time.Now()
	return true, nil
}

func (r *PurchaseRepository) MarkFailedBySession(ctx context.Context, sessionID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	purchase := r.s.purchaseBySession(sessionID)
	if purchase == nil {
		return false, repository.ErrNotFound
	}
	if purchase.Status != models.PurchaseStatusPending {
		return false, nil
	}
	purchase.Status = models.PurchaseStatusFailed
	purchase.UpdatedAt = time.Now()
	return true, nil
}

func (r *PurchaseRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	purchase := r.s.purchaseBySession(sessionID)
	if purchase == nil {
		return nil, repository.ErrNotFound
	}
	copied := *purchase
	return &copied, nil
}

func (r *PurchaseRepository) HasCompleted(ctx context.Context, userID, courseID uint) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.hasCompleted(userID, courseID), nil
}

func (r *PurchaseRepository) ListCompleted(ctx context.Context) ([]models.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.listPurchases(func(p *models.Purchase) bool { return p.IsCompleted() }), nil
}

func (r *PurchaseRepository) ListByUser(ctx context.Context, userID uint) ([]models.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.listPurchases(func(p *models.Purchase) bool { return p.UserID == userID }), nil
}

// listPurchases returns matching purchases newest first with their course. Caller holds mu.
func (s *Store) listPurchases(match func(*models.Purchase) bool) []models.Purchase {
	purchases := []models.Purchase{}
	for _, p := range s.purchases {
		if !match(p) {
			continue
		}
		copied := *p
		if course, ok := s.courses[p.CourseID]; ok {
			c := *course
			copied.Course = &c
		}
		purchases = append(purchases, copied)
	}
	sort.Slice(purchases, func(i, j int) bool { return purchases[i].ID > purchases[j].ID })
	return purchases
}

func (s *Store) purchaseBySession(sessionID string) *models.Purchase {
	for _, p := range s.purchases {
		if p.PaymentSessionID != nil && *p.PaymentSessionID == sessionID {
			return p
		}
	}
	return nil
}

func (s *Store) hasCompleted(userID, courseID uint) bool {
	for _, p := range s.purchases {
		if p.UserID == userID && p.CourseID == courseID && p.IsCompleted() {
			return true
		}
	}
	return false
}

// ---- entitlements ----

type EntitlementStore struct{ s *Store }

var _ repository.EntitlementStore = (*EntitlementStore)(nil)

func (e *EntitlementStore) CompletePurchase(ctx context.Context, sessionID string, amount *float64) (*models.Purchase, bool, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	purchase := e.s.purchaseBySession(sessionID)
	if purchase == nil {
		return nil, false, repository.ErrNotFound
	}
	if purchase.IsCompleted() {
		copied := *purchase
		return &copied, false, nil
	}
	if e.s.hasCompleted(purchase.UserID, purchase.CourseID) {
		copied := *purchase
		return &copied, false, repository.ErrDuplicateEntitlement
	}

	purchase.Status = models.PurchaseStatusCompleted
	if amount != nil {
		purchase.Amount = *amount
	}
	purchase.UpdatedAt = time.Now()
	e.s.grant(purchase.UserID, purchase.CourseID)

	copied := *purchase
	return &copied, true, nil
}

func (e *EntitlementStore) GrantEntitlements(ctx context.Context, purchase *models.Purchase) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	e.s.grant(purchase.UserID, purchase.CourseID)
	return nil
}

func (e *EntitlementStore) ListMissingEntitlements(ctx context.Context) ([]models.Purchase, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	missing := []models.Purchase{}
	for _, p := range e.s.purchases {
		if !p.IsCompleted() {
			continue
		}
		key := pair{userID: p.UserID, courseID: p.CourseID}
		_, hasCourse := e.s.userCourses[key]
		_, hasStudent := e.s.courseStudents[key]
		if !hasCourse || !hasStudent {
			missing = append(missing, *p)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].ID < missing[j].ID })
	return missing, nil
}

// grant applies the entitlement fan-out. Caller holds mu.
func (s *Store) grant(userID, courseID uint) {
	for _, l := range s.lectures {
		if l.CourseID == courseID && !l.IsPreviewFree {
			l.IsPreviewFree = true
			l.UpdatedAt = time.Now()
		}
	}
	key := pair{userID: userID, courseID: courseID}
	s.userCourses[key] = struct{}{}
	s.courseStudents[key] = struct{}{}
}

// ---- progress ----

type ProgressRepository struct{ s *Store }

var _ repository.ProgressRepository = (*ProgressRepository)(nil)

func (r *ProgressRepository) Get(ctx context.Context, userID, courseID uint) (*models.CourseProgress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	progress, ok := r.s.progress[pair{userID: userID, courseID: courseID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyProgress(progress), nil
}

func (r *ProgressRepository) MarkLectureViewed(ctx context.Context, userID, courseID, lectureID uint) (*models.CourseProgress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pair{userID: userID, courseID: courseID}
	now := time.Now()
	progress, ok := r.s.progress[key]
	if !ok {
		progress = &models.CourseProgress{
			ID:        r.s.id(),
			UserID:    userID,
			CourseID:  courseID,
			CreatedAt: now,
		}
		r.s.progress[key] = progress
	}

	found := false
	for i := range progress.LectureProgress {
		if progress.LectureProgress[i].LectureID == lectureID {
			progress.LectureProgress[i].Viewed = true
			found = true
			break
		}
	}
	if !found {
		progress.LectureProgress = append(progress.LectureProgress, models.LectureProgress{
			ID:               r.s.id(),
			CourseProgressID: progress.ID,
			LectureID:        lectureID,
			Viewed:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	viewed := 0
	for _, entry := range progress.LectureProgress {
		if entry.Viewed {
			viewed++
		}
	}
	total := len(r.s.courseLectures(courseID))
	progress.Completed = total > 0 && viewed == total
	progress.UpdatedAt = now

	return copyProgress(progress), nil
}

func (r *ProgressRepository) SetAllViewed(ctx context.Context, userID, courseID uint, viewed bool) (*models.CourseProgress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	progress, ok := r.s.progress[pair{userID: userID, courseID: courseID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for i := range progress.LectureProgress {
		progress.LectureProgress[i].Viewed = viewed
	}
	progress.Completed = viewed
	progress.UpdatedAt = time.Now()

	return copyProgress(progress), nil
}

func copyProgress(p *models.CourseProgress) *models.CourseProgress {
	copied := *p
	copied.LectureProgress = append([]models.LectureProgress{}, p.LectureProgress...)
	return &copied
}
