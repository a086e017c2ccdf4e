package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayment computes the expected payment signature: HMAC-SHA256 over
// "<gatewayOrderID>|<gatewayPaymentID>" with the key secret, hex encoded.
func SignPayment(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks a client-supplied payment signature.  The
// comparison is constant-time so signature bytes cannot be guessed through
// timing.
func VerifyPaymentSignature(secret, orderID, paymentID, signature string) bool {
	expected := SignPayment(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignWebhookBody computes the webhook body signature: HMAC-SHA256 over the
// raw request body with the webhook secret, hex encoded.
func SignWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a webhook delivery in constant time.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	expected := SignWebhookBody(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
