package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newTestService(apiURL string) *StripeService {
	return newTestServiceIn(apiURL, "usd")
}

func newTestServiceIn(apiURL, currency string) *StripeService {
	return NewStripeService(Config{
		SecretKey:        "sk_test_123",
		WebhookSecret:    testWebhookSecret,
		Currency:         currency,
		AllowedCountries: []string{"US", "TR"},
		SuccessURL:       "http://localhost:5173/course-progress/{courseId}",
		CancelURL:        "http://localhost:5173/course-detail/{courseId}",
		Timeout:          2 * time.Second,
		APIURL:           apiURL,
	}, zap.NewNop())
}

func TestCreateCheckoutSession_SendsLineItemAndMetadata(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
	}))
	defer server.Close()

	svc := newTestService(server.URL)
	sess, err := svc.CreateCheckoutSession(context.Background(), CheckoutRequest{
		PurchaseID:  7,
		UserID:      3,
		CourseID:    42,
		CourseTitle: "Go",
		Thumbnail:   "https://cdn.example.com/go.png",
		Amount:      499.99,
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "49999", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "Go", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "42", form.Get("metadata[course_id]"))
	assert.Equal(t, "3", form.Get("metadata[user_id]"))
	assert.Equal(t, "7", form.Get("metadata[purchase_id]"))
	assert.Equal(t, "7", form.Get("client_reference_id"))
	assert.Equal(t, "http://localhost:5173/course-progress/42", form.Get("success_url"))
	assert.Equal(t, "http://localhost:5173/course-detail/42", form.Get("cancel_url"))
	assert.Equal(t, "US", form.Get("shipping_address_collection[allowed_countries][0]"))
}

func TestCreateCheckoutSession_NoURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session"}`)
	}))
	defer server.Close()

	_, err := newTestService(server.URL).CreateCheckoutSession(context.Background(), CheckoutRequest{CourseTitle: "Go", Amount: 1})
	assert.ErrorIs(t, err, ErrNoRedirectURL)
}

func TestCreateCheckoutSession_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"bad currency"}}`)
	}))
	defer server.Close()

	_, err := newTestService(server.URL).CreateCheckoutSession(context.Background(), CheckoutRequest{CourseTitle: "Go", Amount: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRedirectURL)
}

func TestConstructEvent_CheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"amount_total": 49999,
			"currency": "usd",
			"payment_status": "paid",
			"client_reference_id": "7",
			"metadata": {"course_id": "42", "user_id": "3"}
		}}
	}`)

	event, err := newTestService("").ConstructEvent(payload, sign(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, "cs_test_1", event.SessionID)
	require.NotNil(t, event.AmountTotal)
	assert.Equal(t, int64(49999), *event.AmountTotal)
	assert.Equal(t, "usd", event.Currency)
	assert.Equal(t, "paid", event.PaymentStatus)
	assert.Equal(t, "7", event.ClientReferenceID)
	assert.Equal(t, "42", event.Metadata["course_id"])
}

func TestConstructEvent_AmountAbsent(t *testing.T) {
	payload := []byte(`{"id":"evt_2","object":"event","type":"checkout.session.expired","data":{"object":{"id":"cs_test_2","object":"checkout.session"}}}`)

	event, err := newTestService("").ConstructEvent(payload, sign(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "cs_test_2", event.SessionID)
	assert.Nil(t, event.AmountTotal)
}

func TestConstructEvent_OtherEventType(t *testing.T) {
	payload := []byte(`{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)

	event, err := newTestService("").ConstructEvent(payload, sign(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "customer.created", event.Type)
	assert.Empty(t, event.SessionID)
}

func TestConstructEvent_SignatureFailures(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1"}}}`)
	svc := newTestService("")

	_, err := svc.ConstructEvent(payload, "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = svc.ConstructEvent(payload, sign(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = svc.ConstructEvent(payload, sign(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	_, err = svc.ConstructEvent(tampered, sign(payload, testWebhookSecret, time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		currency string
		amount   float64
		minor    int64
	}{
		{"usd", 499.99, 49999},
		{"eur", 19.99, 1999},
		{"USD", 10, 1000},
		{"jpy", 499, 499},
		{"krw", 15000, 15000},
	}

	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.minor, ToMinorUnits(tt.amount, tt.currency))
			assert.Equal(t, tt.amount, FromMinorUnits(tt.minor, tt.currency))
		})
	}
}

func TestSupportedCurrency(t *testing.T) {
	assert.True(t, SupportedCurrency("usd"))
	assert.True(t, SupportedCurrency("JPY"))
	assert.False(t, SupportedCurrency("kwd"))
	assert.False(t, SupportedCurrency("us"))
}

func TestCreateCheckoutSession_ZeroDecimalCurrency(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_jpy","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_jpy"}`)
	}))
	defer server.Close()

	_, err := newTestServiceIn(server.URL, "jpy").CreateCheckoutSession(context.Background(), CheckoutRequest{
		PurchaseID:  1,
		UserID:      3,
		CourseID:    42,
		CourseTitle: "Go",
		Amount:      499,
	})
	require.NoError(t, err)

	assert.Equal(t, "jpy", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "499", form.Get("line_items[0][price_data][unit_amount]"))
}
