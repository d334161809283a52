package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/zap"
)

const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncPaymentOK     = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed = "checkout.session.async_payment_failed"
	EventCheckoutExpired            = "checkout.session.expired"

	PaymentStatusUnpaid = "unpaid"

	courseIDPlaceholder = "{courseId}"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNoRedirectURL    = errors.New("payment provider returned no redirect url")
)

type Config struct {
	SecretKey        string
	WebhookSecret    string
	Currency         string
	AllowedCountries []string
	// SuccessURL and CancelURL may contain {courseId}.
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
	// APIURL overrides the Stripe API base URL. Empty means the live API.
	APIURL string
}

type CheckoutRequest struct {
	PurchaseID    uint
	UserID        uint
	CourseID      uint
	CourseTitle   string
	Thumbnail     string
	Amount        float64
	CustomerEmail string
}

type Session struct {
	ID  string
	URL string
}

// Event is a verified gateway event reduced to the checkout session fields
// the reconciler needs. AmountTotal is in minor units and nil when absent.
type Event struct {
	ID                string
	Type              string
	SessionID         string
	AmountTotal       *int64
	Currency          string
	PaymentStatus     string
	ClientReferenceID string
	Metadata          map[string]string
}

type StripeService struct {
	api    *client.API
	config Config
}

func NewStripeService(cfg Config, log *zap.Logger) *StripeService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	leveled := log.Named("stripe").Sugar()

	// GetBackendWithConfig rewrites URL on the config it gets, so each
	// backend needs its own.
	backendConfig := func() *stripe.BackendConfig {
		bc := &stripe.BackendConfig{
			HTTPClient:        httpClient,
			LeveledLogger:     leveled,
			MaxNetworkRetries: stripe.Int64(0),
		}
		if cfg.APIURL != "" {
			bc.URL = stripe.String(cfg.APIURL)
		}
		return bc
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig()),
	}

	return &StripeService{
		api:    client.New(cfg.SecretKey, backends),
		config: cfg,
	}
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	courseID := strconv.FormatUint(uint64(req.CourseID), 10)

	productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.CourseTitle),
	}
	if req.Thumbnail != "" {
		productData.Images = stripe.StringSlice([]string{req.Thumbnail})
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(s.config.Currency),
					UnitAmount:  stripe.Int64(ToMinorUnits(req.Amount, s.config.Currency)),
					ProductData: productData,
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(strings.ReplaceAll(s.config.SuccessURL, courseIDPlaceholder, courseID)),
		CancelURL:         stripe.String(strings.ReplaceAll(s.config.CancelURL, courseIDPlaceholder, courseID)),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(req.PurchaseID), 10)),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if len(s.config.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(s.config.AllowedCountries),
		}
	}

	params.AddMetadata("course_id", courseID)
	params.AddMetadata("user_id", strconv.FormatUint(uint64(req.UserID), 10))
	params.AddMetadata("purchase_id", strconv.FormatUint(uint64(req.PurchaseID), 10))

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	if sess.URL == "" {
		return nil, ErrNoRedirectURL
	}

	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// ConstructEvent verifies the signature over the raw payload and decodes the
// checkout session carried by checkout.session.* events.
func (s *StripeService) ConstructEvent(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}

	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signature, s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) {
			return nil, ErrMissingSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{
		ID:   stripeEvent.ID,
		Type: string(stripeEvent.Type),
	}
	if !strings.HasPrefix(event.Type, "checkout.session.") || stripeEvent.Data == nil {
		return event, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(stripeEvent.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	var amount struct {
		AmountTotal *int64 `json:"amount_total"`
	}
	if err := json.Unmarshal(stripeEvent.Data.Raw, &amount); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session amount: %w", err)
	}

	event.SessionID = sess.ID
	event.AmountTotal = amount.AmountTotal
	event.Currency = string(sess.Currency)
	event.PaymentStatus = string(sess.PaymentStatus)
	event.ClientReferenceID = sess.ClientReferenceID
	event.Metadata = sess.Metadata
	return event, nil
}

// Stripe charges these currencies in whole units.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// Three-decimal currencies need amounts rounded to tens; checkout does not offer them.
var threeDecimalCurrencies = map[string]bool{
	"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
}

// SupportedCurrency reports whether prices in currency convert cleanly to
// Stripe amounts.
func SupportedCurrency(currency string) bool {
	currency = strings.ToLower(currency)
	return len(currency) == 3 && !threeDecimalCurrencies[currency]
}

func minorUnitFactor(currency string) float64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return 1
	}
	return 100
}

func ToMinorUnits(amount float64, currency string) int64 {
	return int64(math.Round(amount * minorUnitFactor(currency)))
}

func FromMinorUnits(amount int64, currency string) float64 {
	return float64(amount) / minorUnitFactor(currency)
}
