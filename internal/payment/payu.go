// Package payment builds signed gateway checkout requests and verifies the
// signatures on the callbacks the gateway posts back. All signing is pure
// computation over the shared merchant key and salt; nothing here talks to
// the network.
package payment

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dukerupert/vellum/internal/domain"
)

// Client signs outbound checkout requests and verifies inbound callbacks for
// one merchant account.
type Client struct {
	key     string
	salt    string
	baseURL string
}

func NewClient(key, salt, baseURL string) *Client {
	return &Client{key: key, salt: salt, baseURL: baseURL}
}

// RequestParams is everything order-specific that enters a checkout request.
type RequestParams struct {
	TxnID       string
	AmountPaise int64
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	SuccessURL  string
	FailureURL  string

	// The UDF slots round-trip through the gateway untouched and come back in
	// the callback under the same signature. They carry the order reference
	// and pricing facts the callback handler needs.
	UDF1 string // order ID
	UDF2 string // discount, rupee string
	UDF3 string // total item count
	UDF4 string
	UDF5 string
}

// Request is the complete signed form the customer's browser posts to the
// gateway.
type Request struct {
	GatewayURL string
	Fields     map[string]string
}

// Callback is the verified, trusted content of a gateway return post.
type Callback struct {
	TxnID       string
	Status      string
	PaymentID   string
	Mode        string
	AmountPaise int64
	FirstName   string
	Email       string
	Phone       string
	UDF1        string
	UDF2        string
	UDF3        string
	UDF4        string
	UDF5        string
}

// Succeeded reports whether the gateway marked the transaction successful.
func (c Callback) Succeeded() bool {
	return c.Status == "success"
}

// NewTxnID returns a fresh random transaction reference. Every payment
// attempt gets its own so gateway retries of an old attempt cannot collide
// with a new one.
func NewTxnID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate txn id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// FormatAmount renders paise as the gateway's rupee string with exactly two
// decimals. The same rendering is used on both signing sides; any drift would
// invalidate the signature.
func FormatAmount(paise int64) string {
	return fmt.Sprintf("%d.%02d", paise/100, paise%100)
}

// ParseAmount converts the gateway's rupee string back to paise. Parsing is
// strict: digits only on both sides of the dot and a two-digit fraction, so a
// mangled amount is rejected instead of silently misread.
func ParseAmount(s string) (int64, error) {
	whole, frac, found := strings.Cut(s, ".")
	if !found {
		frac = "00"
	}
	if whole == "" || len(frac) != 2 || !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	rupees, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	paise, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	return rupees*100 + paise, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BuildRequest assembles and signs the checkout form for one payment attempt.
func (c *Client) BuildRequest(p RequestParams) Request {
	amount := FormatAmount(p.AmountPaise)
	hash := c.requestHash(p.TxnID, amount, p.ProductInfo, p.FirstName, p.Email,
		p.UDF1, p.UDF2, p.UDF3, p.UDF4, p.UDF5)

	return Request{
		GatewayURL: c.baseURL,
		Fields: map[string]string{
			"key":         c.key,
			"txnid":       p.TxnID,
			"amount":      amount,
			"productinfo": p.ProductInfo,
			"firstname":   p.FirstName,
			"email":       p.Email,
			"phone":       p.Phone,
			"surl":        p.SuccessURL,
			"furl":        p.FailureURL,
			"udf1":        p.UDF1,
			"udf2":        p.UDF2,
			"udf3":        p.UDF3,
			"udf4":        p.UDF4,
			"udf5":        p.UDF5,
			"hash":        hash,
		},
	}
}

// VerifyCallback checks the reverse signature on a gateway return post and,
// only if it matches, extracts the trusted fields. An unverifiable post is
// rejected with EUNAUTHORIZED and none of its content may be used.
func (c *Client) VerifyCallback(form url.Values) (Callback, error) {
	const op = "payment.verify_callback"

	got := form.Get("hash")
	if got == "" {
		return Callback{}, domain.Unauthorized(op, "callback signature missing")
	}

	want := c.callbackHash(
		form.Get("status"),
		form.Get("udf5"), form.Get("udf4"), form.Get("udf3"),
		form.Get("udf2"), form.Get("udf1"),
		form.Get("email"), form.Get("firstname"), form.Get("productinfo"),
		form.Get("amount"), form.Get("txnid"),
	)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return Callback{}, domain.Unauthorized(op, "callback signature mismatch")
	}

	paise, err := ParseAmount(form.Get("amount"))
	if err != nil {
		return Callback{}, domain.WrapError(err, domain.EINVALID, op, "malformed callback amount")
	}

	return Callback{
		TxnID:       form.Get("txnid"),
		Status:      form.Get("status"),
		PaymentID:   form.Get("mihpayid"),
		Mode:        form.Get("mode"),
		AmountPaise: paise,
		FirstName:   form.Get("firstname"),
		Email:       form.Get("email"),
		Phone:       form.Get("phone"),
		UDF1:        form.Get("udf1"),
		UDF2:        form.Get("udf2"),
		UDF3:        form.Get("udf3"),
		UDF4:        form.Get("udf4"),
		UDF5:        form.Get("udf5"),
	}, nil
}

// requestHash computes the forward signature:
// sha512(key|txnid|amount|productinfo|firstname|email|udf1..udf5||||||salt).
func (c *Client) requestHash(txnid, amount, productinfo, firstname, email, udf1, udf2, udf3, udf4, udf5 string) string {
	parts := []string{c.key, txnid, amount, productinfo, firstname, email,
		udf1, udf2, udf3, udf4, udf5, "", "", "", "", "", c.salt}
	return sha512Hex(strings.Join(parts, "|"))
}

// callbackHash computes the reverse signature: the forward sequence reversed
// with the salt in front and the status inserted after it.
func (c *Client) callbackHash(status, udf5, udf4, udf3, udf2, udf1, email, firstname, productinfo, amount, txnid string) string {
	parts := []string{c.salt, status, "", "", "", "", "",
		udf5, udf4, udf3, udf2, udf1, email, firstname, productinfo, amount, txnid, c.key}
	return sha512Hex(strings.Join(parts, "|"))
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}
