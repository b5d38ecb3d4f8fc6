package payment_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/vellum/internal/domain"
	"github.com/dukerupert/vellum/internal/payment"
)

func testClient() *payment.Client {
	return payment.NewClient("testkey", "testsalt", "https://gateway.example/_payment")
}

// callbackForm builds the form a well-behaved gateway would post back for the
// given request fields, signed with the same key and salt.
func callbackForm(t *testing.T, c *payment.Client, req payment.Request, status string) url.Values {
	t.Helper()

	form := url.Values{}
	for _, k := range []string{"txnid", "amount", "productinfo", "firstname",
		"email", "phone", "udf1", "udf2", "udf3", "udf4", "udf5"} {
		form.Set(k, req.Fields[k])
	}
	form.Set("status", status)
	form.Set("mihpayid", "403993715531")
	form.Set("mode", "UPI")
	form.Set("hash", payment.CallbackHashForTest(c, form))
	return form
}

func TestBuildRequest_SignsAllFields(t *testing.T) {
	c := testClient()

	req := c.BuildRequest(payment.RequestParams{
		TxnID:       "abc123",
		AmountPaise: 55000,
		ProductInfo: "Book order",
		FirstName:   "Asha",
		Email:       "asha@example.com",
		Phone:       "9876543210",
		SuccessURL:  "https://shop.example/webhooks/payment",
		FailureURL:  "https://shop.example/webhooks/payment",
		UDF1:        "order-id",
		UDF2:        "0.00",
		UDF3:        "2",
	})

	assert.Equal(t, "https://gateway.example/_payment", req.GatewayURL)
	assert.Equal(t, "550.00", req.Fields["amount"])
	assert.Equal(t, "testkey", req.Fields["key"])
	assert.NotEmpty(t, req.Fields["hash"])
	assert.Len(t, req.Fields["hash"], 128) // hex sha512
}

func TestVerifyCallback_AcceptsGenuineCallback(t *testing.T) {
	c := testClient()
	req := c.BuildRequest(payment.RequestParams{
		TxnID:       "abc123",
		AmountPaise: 55000,
		ProductInfo: "Book order",
		FirstName:   "Asha",
		Email:       "asha@example.com",
		UDF1:        "order-id",
		UDF2:        "0.00",
		UDF3:        "2",
	})

	cb, err := c.VerifyCallback(callbackForm(t, c, req, "success"))

	require.NoError(t, err)
	assert.True(t, cb.Succeeded())
	assert.Equal(t, "abc123", cb.TxnID)
	assert.Equal(t, int64(55000), cb.AmountPaise)
	assert.Equal(t, "order-id", cb.UDF1)
	assert.Equal(t, "403993715531", cb.PaymentID)
}

func TestVerifyCallback_RejectsTamperedAmount(t *testing.T) {
	c := testClient()
	req := c.BuildRequest(payment.RequestParams{
		TxnID:       "abc123",
		AmountPaise: 55000,
		ProductInfo: "Book order",
		FirstName:   "Asha",
		Email:       "asha@example.com",
	})
	form := callbackForm(t, c, req, "success")
	form.Set("amount", "1.00")

	_, err := c.VerifyCallback(form)

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EUNAUTHORIZED))
}

func TestVerifyCallback_RejectsFlippedStatus(t *testing.T) {
	// A failure callback re-posted with status flipped to success must not
	// verify: the status participates in the signature.
	c := testClient()
	req := c.BuildRequest(payment.RequestParams{
		TxnID:       "abc123",
		AmountPaise: 55000,
		ProductInfo: "Book order",
		FirstName:   "Asha",
		Email:       "asha@example.com",
	})
	form := callbackForm(t, c, req, "failure")
	form.Set("status", "success")

	_, err := c.VerifyCallback(form)

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EUNAUTHORIZED))
}

func TestVerifyCallback_RejectsMissingHash(t *testing.T) {
	c := testClient()

	form := url.Values{}
	form.Set("txnid", "abc123")
	form.Set("status", "success")

	_, err := c.VerifyCallback(form)

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EUNAUTHORIZED))
}

func TestVerifyCallback_RejectsWrongSalt(t *testing.T) {
	// A callback signed by someone without the real salt must be rejected.
	c := testClient()
	imposter := payment.NewClient("testkey", "wrongsalt", "https://gateway.example/_payment")
	req := imposter.BuildRequest(payment.RequestParams{
		TxnID:       "abc123",
		AmountPaise: 55000,
		FirstName:   "Asha",
		Email:       "asha@example.com",
	})

	_, err := c.VerifyCallback(callbackForm(t, imposter, req, "success"))

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EUNAUTHORIZED))
}

func TestNewTxnID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := payment.NewTxnID()
		require.NoError(t, err)
		assert.Len(t, id, 32)
		assert.False(t, seen[id], "txn id repeated")
		seen[id] = true
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		paise int64
		want  string
	}{
		{55000, "550.00"},
		{4900, "49.00"},
		{100, "1.00"},
		{105, "1.05"},
		{49899, "498.99"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, payment.FormatAmount(tt.paise))
	}
}

func TestParseAmount_RoundTrips(t *testing.T) {
	for _, paise := range []int64{0, 1, 99, 100, 4900, 49899, 55000} {
		got, err := payment.ParseAmount(payment.FormatAmount(paise))
		require.NoError(t, err)
		assert.Equal(t, paise, got)
	}
}

func TestParseAmount_RejectsMalformed(t *testing.T) {
	// Non-digit characters must fail outright, never be read as a prefix:
	// "1.5x" is not 105 paise and "12.-3" is not anything.
	for _, s := range []string{"", "abc", "1.5", "1.500", "1.5x", "12.-3", "1e.00", ".50", "-1.00", " 1.00", "1 .00"} {
		_, err := payment.ParseAmount(s)
		assert.Error(t, err, "amount %q", s)
	}
}

func TestParseAmount_AcceptsWholeRupees(t *testing.T) {
	got, err := payment.ParseAmount("500")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got)
}
