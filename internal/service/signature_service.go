package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
// Collaborators sign every ledger event they submit.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (s *HMACSignatureService) Sign(secretKey string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. A "sha256=" prefix and upper-case hex
// are accepted.
func (s *HMACSignatureService) Verify(secretKey string, payload string, signature string) bool {
	signature = strings.ToLower(strings.TrimPrefix(signature, "sha256="))
	expected := s.Sign(secretKey, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// BuildCanonicalString constructs the signed payload:
// METHOD|PATH|TIMESTAMP|NONCE|hex(SHA256(BODY)).
func (s *HMACSignatureService) BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string {
	sum := sha256.Sum256([]byte(body))
	return fmt.Sprintf("%s|%s|%d|%s|%s", strings.ToUpper(method), path, timestamp, nonce, hex.EncodeToString(sum[:]))
}
