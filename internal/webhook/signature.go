package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
)

// SignatureHeader carries the HMAC of the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// Sign returns the header value for body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks header against the HMAC-SHA256 of the raw body.
// An empty secret disables the check. body must be the bytes exactly as
// received; a re-encoded payload will not match.
func ValidateSignature(body []byte, header, secret string) error {
	if secret == "" {
		return nil
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("%w: missing %s header", apperrors.ErrInvalidSignature, SignatureHeader)
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return fmt.Errorf("%w: unsupported signature scheme", apperrors.ErrInvalidSignature)
	}

	want := Sign(body, secret)
	if !hmac.Equal([]byte(header), []byte(want)) {
		return fmt.Errorf("%w: digest mismatch", apperrors.ErrInvalidSignature)
	}
	return nil
}
