package messenger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// ErrInvalidSignature is returned when a webhook body fails verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifySignature checks an X-Hub-Signature-256 header ("sha256=<hex>")
// against body using the app secret.
func VerifySignature(appSecret string, body []byte, header string) error {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrInvalidSignature
	}
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(sig, Sign(appSecret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(appSecret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return mac.Sum(nil)
}

// appSecretProof is the appsecret_proof parameter for Graph API calls.
func appSecretProof(appSecret, token string) string {
	return hex.EncodeToString(Sign(appSecret, []byte(token)))
}
