package payment

import "net/url"

// CallbackHashForTest signs a callback form the way the gateway would, so
// tests can fabricate genuine and tampered callbacks.
func CallbackHashForTest(c *Client, form url.Values) string {
	return c.callbackHash(
		form.Get("status"),
		form.Get("udf5"), form.Get("udf4"), form.Get("udf3"),
		form.Get("udf2"), form.Get("udf1"),
		form.Get("email"), form.Get("firstname"), form.Get("productinfo"),
		form.Get("amount"), form.Get("txnid"),
	)
}
