package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	appErrors "github.com/noah-isme/casevault-api/pkg/errors"
)

// UploadClaims is the canonical payload bound into an upload capability token.
// Field order is the signing order.
type UploadClaims struct {
	CaseID      string `json:"caseId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	Exp         int64  `json:"exp"`
}

// ExpiresAt returns the absolute expiry of the claims.
func (c UploadClaims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0).UTC()
}

type signedUploadToken struct {
	UploadClaims
	Signature string `json:"signature"`
}

// ObservedFile describes what actually arrived at the upload gateway.
type ObservedFile struct {
	Filename    string
	ContentType string
	SizeBytes   int64
}

// UploadTokenSigner issues and verifies stateless upload capability tokens.
type UploadTokenSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewUploadTokenSigner constructs a signer; an empty key or non-positive TTL is a configuration error.
func NewUploadTokenSigner(signingKey string, ttl time.Duration) (*UploadTokenSigner, error) {
	if signingKey == "" {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "upload token signing key missing")
	}
	if ttl <= 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "upload token ttl must be positive")
	}
	return &UploadTokenSigner{key: []byte(signingKey), ttl: ttl, now: time.Now}, nil
}

// GenerateToken mints a token for one upload of the given file into the given case.
func (s *UploadTokenSigner) GenerateToken(caseID, filename, contentType string, sizeBytes int64) (string, time.Time) {
	expiresAt := s.now().Add(s.ttl)
	claims := UploadClaims{
		CaseID:      caseID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		Exp:         expiresAt.Unix(),
	}
	// Marshalling strings and integers cannot fail.
	raw, _ := json.Marshal(signedUploadToken{UploadClaims: claims, Signature: s.sign(claims)})
	return base64.RawURLEncoding.EncodeToString(raw), claims.ExpiresAt()
}

// Parse decodes the token and verifies its signature.
// When allowExpired is true, the expiry check is skipped (used by reconciliation and diagnostics).
func (s *UploadTokenSigner) Parse(token string, allowExpired bool) (*UploadClaims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTokenSignatureInvalid.Code, appErrors.ErrTokenSignatureInvalid.Status, "malformed upload token")
	}
	var decoded signedUploadToken
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTokenSignatureInvalid.Code, appErrors.ErrTokenSignatureInvalid.Status, "malformed upload token")
	}
	if decoded.Signature == "" {
		return nil, appErrors.ErrTokenSignatureInvalid
	}
	expected := s.sign(decoded.UploadClaims)
	if !hmac.Equal([]byte(expected), []byte(decoded.Signature)) {
		return nil, appErrors.ErrTokenSignatureInvalid
	}
	if !allowExpired && !s.now().Before(decoded.ExpiresAt()) {
		return nil, appErrors.ErrTokenExpired
	}
	claims := decoded.UploadClaims
	return &claims, nil
}

// VerifyClaims compares the signed claims with the file that was actually received.
func VerifyClaims(claims *UploadClaims, observed ObservedFile) error {
	if claims == nil {
		return appErrors.ErrTokenSignatureInvalid
	}
	switch {
	case GetSafeFilename(claims.Filename) != GetSafeFilename(observed.Filename):
		return appErrors.Wrap(errors.New("filename"), appErrors.ErrClaimMismatch.Code, appErrors.ErrClaimMismatch.Status, "filename does not match token")
	case claims.ContentType != observed.ContentType:
		return appErrors.Wrap(errors.New("content type"), appErrors.ErrClaimMismatch.Code, appErrors.ErrClaimMismatch.Status, "content type does not match token")
	case claims.SizeBytes != observed.SizeBytes:
		return appErrors.Wrap(errors.New("size"), appErrors.ErrClaimMismatch.Code, appErrors.ErrClaimMismatch.Status, "size does not match token")
	}
	return nil
}

// QuarantineFolder derives the quarantine directory name for a token.
// Tokens are too long to serve as a directory name themselves.
func QuarantineFolder(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

func (s *UploadTokenSigner) sign(claims UploadClaims) string {
	payload, _ := json.Marshal(claims)
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
