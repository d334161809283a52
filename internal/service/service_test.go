package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sefazor/ourcourses-backend/internal/metrics"
	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/repository"
	"github.com/sefazor/ourcourses-backend/internal/repository/memory"
	"github.com/sefazor/ourcourses-backend/pkg/payment"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validSignature = "t=1,v1=valid"

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.CheckoutRequest
	err      error
	delay    time.Duration
	noURL    bool
	issued   int
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.Session, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.issued++
	n := g.issued
	err, delay, noURL := g.err, g.delay, g.noURL
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("cs_test_%d", n)
	if noURL {
		return &payment.Session{ID: id}, nil
	}
	return &payment.Session{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

// ConstructEvent accepts validSignature only and decodes the payload as a
// payment.Event.
func (g *fakeGateway) ConstructEvent(payload []byte, signature string) (*payment.Event, error) {
	if signature == "" {
		return nil, payment.ErrMissingSignature
	}
	if signature != validSignature {
		return nil, fmt.Errorf("%w: no valid signature", payment.ErrInvalidSignature)
	}
	var event payment.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (g *fakeGateway) lastRequest() payment.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
	// block, when set, holds every send until it is closed.
	block chan struct{}
}

func (n *fakeNotifier) SendEnrollmentConfirmation(email, fullName, courseTitle string, courseID uint) error {
	if n.block != nil {
		<-n.block
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email+"|"+courseTitle)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// emailsSent waits for queued enrollment emails and reports how many went out.
func (env *testEnv) emailsSent(t *testing.T) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.payments.WaitForNotifications(ctx))
	return env.notifier.count()
}

type testEnv struct {
	store    *memory.Store
	gateway  *fakeGateway
	notifier *fakeNotifier
	payments *PaymentService
	courses  *CourseService
	progress *ProgressService
	student  *models.User
	course   *models.Course
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	instructor := &models.User{Name: "Grace", Email: "grace@example.com", Role: models.RoleInstructor}
	require.NoError(t, store.Users().Create(ctx, instructor))
	student := &models.User{Name: "Ada", Email: "ada@example.com", Role: models.RoleStudent}
	require.NoError(t, store.Users().Create(ctx, student))

	course := &models.Course{
		Title:     "Go for Backend Developers",
		Price:     499,
		CreatorID: instructor.ID,
		Lectures: []models.Lecture{
			{Title: "one", Position: 1, IsPreviewFree: true},
			{Title: "two", Position: 2},
			{Title: "three", Position: 3},
		},
	}
	require.NoError(t, store.Courses().Create(ctx, course))

	env := &testEnv{
		store:    store,
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
		student:  student,
		course:   course,
	}
	env.payments = newPaymentService(env, store.Entitlements(), Timeouts{Gateway: 200 * time.Millisecond})
	env.courses = NewCourseService(store.Users(), store.Courses(), store.Purchases(), zap.NewNop(), Timeouts{})
	env.progress = NewProgressService(store.Courses(), store.Progress(), metrics.NopCollector{}, zap.NewNop(), Timeouts{})
	return env
}

func newPaymentService(env *testEnv, entitlements repository.EntitlementStore, timeouts Timeouts) *PaymentService {
	return NewPaymentService(
		env.gateway,
		env.store.Users(),
		env.store.Courses(),
		env.store.Purchases(),
		entitlements,
		env.notifier,
		metrics.NopCollector{},
		zap.NewNop(),
		timeouts,
	)
}

func eventPayload(t *testing.T, event payment.Event) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func completedEvent(t *testing.T, sessionID string) []byte {
	amount := int64(49900)
	return eventPayload(t, payment.Event{
		ID:            "evt_" + sessionID,
		Type:          payment.EventCheckoutCompleted,
		SessionID:     sessionID,
		AmountTotal:   &amount,
		PaymentStatus: "paid",
	})
}

var errStoreDown = errors.New("connection reset by peer")

// brokenEntitlements fails every completion with a transient store error.
type brokenEntitlements struct {
	*memory.EntitlementStore
}

func (brokenEntitlements) CompletePurchase(context.Context, string, *float64) (*models.Purchase, bool, error) {
	return nil, false, errStoreDown
}
