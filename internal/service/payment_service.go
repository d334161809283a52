package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sefazor/ourcourses-backend/internal/metrics"
	"github.com/sefazor/ourcourses-backend/internal/models"
	"github.com/sefazor/ourcourses-backend/internal/repository"
	"github.com/sefazor/ourcourses-backend/pkg/payment"
	"go.uber.org/zap"
)

// PaymentGateway is the part of the payment provider the purchase flow uses.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.Session, error)
	ConstructEvent(payload []byte, signature string) (*payment.Event, error)
}

type EnrollmentNotifier interface {
	SendEnrollmentConfirmation(email, fullName, courseTitle string, courseID uint) error
}

// maxPendingNotifications caps enrollment emails in flight at once.
const maxPendingNotifications = 16

type PaymentService struct {
	gateway      PaymentGateway
	userRepo     repository.UserRepository
	courseRepo   repository.CourseRepository
	purchaseRepo repository.PurchaseRepository
	entitlements repository.EntitlementStore
	notifier     EnrollmentNotifier
	metrics      metrics.MetricsCollector
	logger       *zap.Logger
	timeouts     Timeouts

	notifySlots   chan struct{}
	notifications sync.WaitGroup
}

// NewPaymentService wires the checkout and webhook flows. notifier may be nil.
func NewPaymentService(
	gateway PaymentGateway,
	userRepo repository.UserRepository,
	courseRepo repository.CourseRepository,
	purchaseRepo repository.PurchaseRepository,
	entitlements repository.EntitlementStore,
	notifier EnrollmentNotifier,
	collector metrics.MetricsCollector,
	log *zap.Logger,
	timeouts Timeouts,
) *PaymentService {
	return &PaymentService{
		gateway:      gateway,
		userRepo:     userRepo,
		courseRepo:   courseRepo,
		purchaseRepo: purchaseRepo,
		entitlements: entitlements,
		notifier:     notifier,
		metrics:      collector,
		logger:       log.Named("payment"),
		timeouts:     timeouts.withDefaults(),
		notifySlots:  make(chan struct{}, maxPendingNotifications),
	}
}

func (s *PaymentService) CreateCheckoutSession(ctx context.Context, userID, courseID uint) (*models.CheckoutSession, error) {
	if courseID == 0 {
		return nil, models.NewValidationError("course_id is required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	course, err := s.courseRepo.GetByID(storeCtx, courseID)
	if err != nil {
		return nil, storeError(err, "course")
	}

	owned, err := s.purchaseRepo.HasCompleted(storeCtx, userID, courseID)
	if err != nil {
		return nil, storeError(err, "purchase")
	}
	if owned {
		s.metrics.RecordCheckout(metrics.OutcomeConflict)
		return nil, models.NewConflictError("you have already purchased this course")
	}

	var email string
	user, err := s.userRepo.GetByID(storeCtx, userID)
	switch {
	case err == nil:
		email = user.Email
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storeError(err, "user")
	}

	purchase := &models.Purchase{
		CourseID: courseID,
		UserID:   userID,
		Amount:   course.Price,
		Status:   models.PurchaseStatusPending,
	}
	if err := s.purchaseRepo.Create(storeCtx, purchase); err != nil {
		return nil, storeError(err, "purchase")
	}

	gatewayCtx, cancelGateway := context.WithTimeout(ctx, s.timeouts.Gateway)
	defer cancelGateway()

	started := time.Now()
	session, err := s.gateway.CreateCheckoutSession(gatewayCtx, payment.CheckoutRequest{
		PurchaseID:    purchase.ID,
		UserID:        userID,
		CourseID:      courseID,
		CourseTitle:   course.Title,
		Thumbnail:     course.Thumbnail,
		Amount:        course.Price,
		CustomerEmail: email,
	})
	s.metrics.RecordGatewayLatency(time.Since(started))
	if err != nil {
		s.failPurchase(ctx, purchase.ID)
		s.metrics.RecordCheckout(metrics.OutcomeFailed)
		s.logger.Error("checkout session creation failed",
			zap.Uint("purchase_id", purchase.ID),
			zap.Uint("course_id", courseID),
			zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(gatewayCtx.Err(), context.DeadlineExceeded) {
			return nil, models.NewGatewayTimeoutError(err)
		}
		return nil, models.NewGatewayError("failed to create checkout session", err)
	}
	if session.URL == "" {
		s.failPurchase(ctx, purchase.ID)
		s.metrics.RecordCheckout(metrics.OutcomeFailed)
		return nil, models.NewGatewayError("failed to create checkout session", payment.ErrNoRedirectURL)
	}

	attachCtx, cancelAttach := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancelAttach()
	if err := s.purchaseRepo.AttachSession(attachCtx, purchase.ID, session.ID); err != nil {
		s.failPurchase(ctx, purchase.ID)
		s.metrics.RecordCheckout(metrics.OutcomeFailed)
		return nil, storeError(err, "purchase")
	}

	s.metrics.RecordCheckout(metrics.OutcomeOK)
	s.logger.Info("checkout session created",
		zap.Uint("purchase_id", purchase.ID),
		zap.Uint("user_id", userID),
		zap.Uint("course_id", courseID),
		zap.String("session_id", session.ID))

	return &models.CheckoutSession{
		PurchaseID: purchase.ID,
		SessionID:  session.ID,
		URL:        session.URL,
	}, nil
}

// failPurchase marks a checkout attempt failed. It runs detached from the
// request so a cancelled caller still leaves no dangling pending row.
func (s *PaymentService) failPurchase(ctx context.Context, purchaseID uint) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeouts.Store)
	defer cancel()

	if _, err := s.purchaseRepo.MarkFailed(failCtx, purchaseID); err != nil {
		s.logger.Error("failed to mark purchase failed", zap.Uint("purchase_id", purchaseID), zap.Error(err))
	}
}

// HandleGatewayEvent verifies and applies one webhook delivery. A nil return
// means the delivery can be acknowledged; store errors are returned so the
// gateway redelivers.
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ConstructEvent(payload, signature)
	if err != nil {
		s.metrics.RecordWebhookEvent("unknown", metrics.OutcomeRejected)
		switch {
		case errors.Is(err, payment.ErrMissingSignature):
			return models.NewAuthenticationError("missing webhook signature", err)
		case errors.Is(err, payment.ErrInvalidSignature):
			s.logger.Warn("webhook signature verification failed", zap.Error(err))
			return models.NewAuthenticationError("invalid webhook signature", err)
		default:
			s.logger.Warn("malformed webhook payload", zap.Error(err))
			return models.NewValidationError("malformed webhook payload")
		}
	}

	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	switch event.Type {
	case payment.EventCheckoutCompleted:
		if event.PaymentStatus == payment.PaymentStatusUnpaid {
			log.Info("checkout completed with payment pending", zap.String("session_id", event.SessionID))
			s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeDeferred)
			return nil
		}
		return s.completePurchase(ctx, event, log)

	case payment.EventCheckoutAsyncPaymentOK:
		return s.completePurchase(ctx, event, log)

	case payment.EventCheckoutExpired, payment.EventCheckoutAsyncPaymentFailed:
		return s.failSession(ctx, event, log)

	default:
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeIgnored)
		return nil
	}
}

func (s *PaymentService) completePurchase(ctx context.Context, event *payment.Event, log *zap.Logger) error {
	if event.SessionID == "" {
		log.Warn("checkout event without session id")
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeNotFound)
		return nil
	}
	log = log.With(zap.String("session_id", event.SessionID))

	var amount *float64
	if event.AmountTotal != nil {
		paid := payment.FromMinorUnits(*event.AmountTotal, event.Currency)
		amount = &paid
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	purchase, transitioned, err := s.entitlements.CompletePurchase(storeCtx, event.SessionID, amount)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Warn("no purchase matches checkout session")
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeNotFound)
		return nil

	case errors.Is(err, repository.ErrDuplicateEntitlement):
		if _, markErr := s.purchaseRepo.MarkFailed(storeCtx, purchase.ID); markErr != nil {
			s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeError)
			return storeError(markErr, "purchase")
		}
		log.Error("payment received for a course the user already owns, refund required",
			zap.Uint("purchase_id", purchase.ID),
			zap.Uint("user_id", purchase.UserID),
			zap.Uint("course_id", purchase.CourseID))
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeDuplicate)
		return nil

	case err != nil:
		log.Error("failed to complete purchase", zap.Error(err))
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeError)
		return storeError(err, "purchase")
	}

	if !transitioned {
		log.Info("purchase already completed", zap.Uint("purchase_id", purchase.ID))
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeReplayed)
		return nil
	}

	s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeOK)
	s.metrics.RecordPurchaseCompleted()
	log.Info("purchase completed",
		zap.Uint("purchase_id", purchase.ID),
		zap.Uint("user_id", purchase.UserID),
		zap.Uint("course_id", purchase.CourseID),
		zap.Float64("amount", purchase.Amount))

	s.enqueueEnrollmentEmail(ctx, purchase, log)
	return nil
}

func (s *PaymentService) failSession(ctx context.Context, event *payment.Event, log *zap.Logger) error {
	if event.SessionID == "" {
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeNotFound)
		return nil
	}
	log = log.With(zap.String("session_id", event.SessionID))

	storeCtx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	changed, err := s.purchaseRepo.MarkFailedBySession(storeCtx, event.SessionID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Warn("no purchase matches checkout session")
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeNotFound)
		return nil
	case err != nil:
		log.Error("failed to mark purchase failed", zap.Error(err))
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeError)
		return storeError(err, "purchase")
	}

	if !changed {
		s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeIgnored)
		return nil
	}

	log.Info("purchase failed")
	s.metrics.RecordWebhookEvent(event.Type, metrics.OutcomeOK)
	return nil
}

// enqueueEnrollmentEmail sends the confirmation after the event is acked.
// It is dropped when every slot is busy.
func (s *PaymentService) enqueueEnrollmentEmail(ctx context.Context, purchase *models.Purchase, log *zap.Logger) {
	if s.notifier == nil {
		return
	}

	select {
	case s.notifySlots <- struct{}{}:
	default:
		log.Warn("enrollment email dropped, too many in flight", zap.Uint("purchase_id", purchase.ID))
		return
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		defer func() { <-s.notifySlots }()
		s.notifyEnrollment(context.WithoutCancel(ctx), purchase, log)
	}()
}

// WaitForNotifications blocks until in-flight enrollment emails finish or ctx ends.
func (s *PaymentService) WaitForNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.notifications.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notifyEnrollment is best effort. The purchase is already committed.
func (s *PaymentService) notifyEnrollment(ctx context.Context, purchase *models.Purchase, log *zap.Logger) {
	if s.notifier == nil {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()

	user, err := s.userRepo.GetByID(storeCtx, purchase.UserID)
	if err != nil {
		log.Warn("skipping enrollment email, user lookup failed", zap.Error(err))
		return
	}
	course, err := s.courseRepo.GetByID(storeCtx, purchase.CourseID)
	if err != nil {
		log.Warn("skipping enrollment email, course lookup failed", zap.Error(err))
		return
	}

	if err := s.notifier.SendEnrollmentConfirmation(user.Email, user.Name, course.Title, course.ID); err != nil {
		log.Warn("enrollment email failed", zap.Error(err))
	}
}

// ReconcileEntitlements re-applies the entitlement fan-out for every completed
// purchase whose enrollment entries are missing and returns how many it fixed.
func (s *PaymentService) ReconcileEntitlements(ctx context.Context) (int, error) {
	missing, err := s.entitlements.ListMissingEntitlements(ctx)
	if err != nil {
		return 0, storeError(err, "purchase")
	}

	fixed := 0
	for i := range missing {
		purchase := &missing[i]

		storeCtx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
		err := s.entitlements.GrantEntitlements(storeCtx, purchase)
		cancel()
		if err != nil {
			s.metrics.RecordEntitlementsBackfilled(fixed)
			return fixed, storeError(err, "purchase")
		}

		fixed++
		s.logger.Info("entitlements backfilled",
			zap.Uint("purchase_id", purchase.ID),
			zap.Uint("user_id", purchase.UserID),
			zap.Uint("course_id", purchase.CourseID))
	}

	s.metrics.RecordEntitlementsBackfilled(fixed)
	return fixed, nil
}
