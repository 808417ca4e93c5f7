package webhooks

import "testing"

func TestSignAndVerifyHMAC(t *testing.T) {
	body := []byte(`{"visitId":"v1"}`)
	sig := SignHMAC("secret", body)
	if sig == "" { t.Fatal("empty signature") }
	if !VerifyHMAC("secret", body, sig) { t.Fatal("signature should verify") }
	if VerifyHMAC("wrong", body, sig) { t.Fatal("wrong secret should not verify") }
	if VerifyHMAC("secret", []byte(`{}`), sig) { t.Fatal("tampered body should not verify") }
	if VerifyHMAC("secret", body, "not-hex") { t.Fatal("bad hex should not verify") }
}
