package storage

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/casevault-api/pkg/errors"
)

func newTestSigner(t *testing.T, ttl time.Duration) *UploadTokenSigner {
	t.Helper()
	signer, err := NewUploadTokenSigner("test-signing-key", ttl)
	require.NoError(t, err)
	return signer
}

func TestNewUploadTokenSignerRejectsBadConfig(t *testing.T) {
	_, err := NewUploadTokenSigner("", time.Minute)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConfiguration))

	_, err = NewUploadTokenSigner("key", 0)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConfiguration))
}

func TestUploadTokenRoundTrip(t *testing.T) {
	signer := newTestSigner(t, 15*time.Minute)
	cases := []struct {
		caseID      string
		filename    string
		contentType string
		size        int64
	}{
		{"case-1", "passport.pdf", "application/pdf", 1024},
		{"9f2d4c1e-7b7a-4f36-9b5b-0d1d8f1c2a11", "../../../etc/passwd", "text/plain", 1},
		{"case-3", "résumé final.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", 25 * 1024 * 1024},
	}

	for _, tc := range cases {
		before := time.Now()
		token, expiresAt := signer.GenerateToken(tc.caseID, tc.filename, tc.contentType, tc.size)
		require.NotEmpty(t, token)
		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")
		assert.NotContains(t, token, "=")

		claims, err := signer.Parse(token, false)
		require.NoError(t, err)
		assert.Equal(t, tc.caseID, claims.CaseID)
		assert.Equal(t, tc.filename, claims.Filename)
		assert.Equal(t, tc.contentType, claims.ContentType)
		assert.Equal(t, tc.size, claims.SizeBytes)
		assert.True(t, claims.ExpiresAt().After(before.Truncate(time.Second)))
		assert.Equal(t, expiresAt, claims.ExpiresAt())
	}
}

func TestUploadTokenWireFormat(t *testing.T) {
	signer := newTestSigner(t, time.Minute)
	token, _ := signer.GenerateToken("case-1", "a.pdf", "application/pdf", 10)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"caseId", "filename", "contentType", "sizeBytes", "exp", "signature"} {
		assert.Contains(t, fields, key)
	}
	assert.Greater(t, fields["exp"].(float64), float64(time.Now().Unix()-1))
}

func TestUploadTokenDiffersPerCase(t *testing.T) {
	signer := newTestSigner(t, time.Minute)
	a, _ := signer.GenerateToken("case-a", "same.pdf", "application/pdf", 100)
	b, _ := signer.GenerateToken("case-b", "same.pdf", "application/pdf", 100)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, QuarantineFolder(a), QuarantineFolder(b))
}

func TestUploadTokenTampered(t *testing.T) {
	signer := newTestSigner(t, time.Minute)
	token, _ := signer.GenerateToken("case-1", "a.pdf", "application/pdf", 10)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	forged := strings.Replace(string(raw), `"sizeBytes":10`, `"sizeBytes":99999`, 1)
	_, err = signer.Parse(base64.RawURLEncoding.EncodeToString([]byte(forged)), false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenSignatureInvalid))

	_, err = signer.Parse("not-a-token!!", false)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenSignatureInvalid))

	other, err := NewUploadTokenSigner("another-key", time.Minute)
	require.NoError(t, err)
	_, err = other.Parse(token, false)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenSignatureInvalid))
}

func TestUploadTokenExpired(t *testing.T) {
	signer := newTestSigner(t, time.Minute)
	issued := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return issued }
	token, _ := signer.GenerateToken("case-1", "a.pdf", "application/pdf", 10)

	signer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err := signer.Parse(token, false)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTokenExpired))

	claims, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "case-1", claims.CaseID)
}

func TestVerifyClaims(t *testing.T) {
	claims := &UploadClaims{CaseID: "case-1", Filename: "C:\\docs\\scan.pdf", ContentType: "application/pdf", SizeBytes: 42}

	require.NoError(t, VerifyClaims(claims, ObservedFile{Filename: "scan.pdf", ContentType: "application/pdf", SizeBytes: 42}))

	err := VerifyClaims(claims, ObservedFile{Filename: "scan.pdf", ContentType: "application/pdf", SizeBytes: 43})
	assert.True(t, appErrors.Is(err, appErrors.ErrClaimMismatch))

	err = VerifyClaims(claims, ObservedFile{Filename: "scan.pdf", ContentType: "image/png", SizeBytes: 42})
	assert.True(t, appErrors.Is(err, appErrors.ErrClaimMismatch))

	err = VerifyClaims(claims, ObservedFile{Filename: "other.pdf", ContentType: "application/pdf", SizeBytes: 42})
	assert.True(t, appErrors.Is(err, appErrors.ErrClaimMismatch))
}
