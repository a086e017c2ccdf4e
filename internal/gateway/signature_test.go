package gateway

import "testing"

func TestVerifyPaymentSignature(t *testing.T) {
	const secret = "key-secret"
	sig := SignPayment(secret, "order_ABC", "pay_XYZ")

	if !VerifyPaymentSignature(secret, "order_ABC", "pay_XYZ", sig) {
		t.Fatal("valid signature rejected")
	}
	if VerifyPaymentSignature(secret, "order_OTHER", "pay_XYZ", sig) {
		t.Fatal("signature accepted for a different order")
	}
	if VerifyPaymentSignature("other-secret", "order_ABC", "pay_XYZ", sig) {
		t.Fatal("signature accepted under a different secret")
	}
}

// Any single flipped bit in the signature must be rejected.
func TestVerifyPaymentSignatureTamperedBits(t *testing.T) {
	const secret = "key-secret"
	sig := SignPayment(secret, "order_ABC", "pay_XYZ")

	for i := 0; i < len(sig); i++ {
		for bit := uint(0); bit < 8; bit++ {
			tampered := []byte(sig)
			tampered[i] ^= 1 << bit
			if string(tampered) == sig {
				continue
			}
			if VerifyPaymentSignature(secret, "order_ABC", "pay_XYZ", string(tampered)) {
				t.Fatalf("tampered signature accepted (byte %d bit %d)", i, bit)
			}
		}
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	const secret = "webhook-secret"
	body := []byte(`{"event":"payment.captured"}`)
	sig := SignWebhookBody(secret, body)

	if !VerifyWebhookSignature(secret, body, sig) {
		t.Fatal("valid webhook signature rejected")
	}
	if VerifyWebhookSignature(secret, []byte(`{"event":"payment.failed"}`), sig) {
		t.Fatal("signature accepted for a different body")
	}
	if VerifyWebhookSignature(secret, body, sig+"00") {
		t.Fatal("lengthened signature accepted")
	}
}
