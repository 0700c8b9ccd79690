package service

import (
	"bytes"
	"context"
)

// eicarSignature is the industry standard antivirus test string.
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// ScanResult is the classification of one file.
type ScanResult struct {
	Infected  bool
	Signature string
}

// Verdict returns a short label for logs and audit entries.
func (r ScanResult) Verdict() string {
	if r.Infected {
		return r.Signature + " detected"
	}
	return "clean"
}

// Scanner classifies file content. Implementations must be safe for concurrent use.
type Scanner interface {
	Classify(ctx context.Context, content []byte) (ScanResult, error)
}

// SignatureScanner flags content containing any of a fixed set of byte signatures.
type SignatureScanner struct {
	signatures map[string][]byte
}

// NewSignatureScanner builds a scanner that recognises the EICAR test file plus
// any extra named signatures.
func NewSignatureScanner(extra map[string]string) *SignatureScanner {
	signatures := map[string][]byte{"EICAR-Test-File": []byte(eicarSignature)}
	for name, sig := range extra {
		if name == "" || sig == "" {
			continue
		}
		signatures[name] = []byte(sig)
	}
	return &SignatureScanner{signatures: signatures}
}

// Classify implements Scanner.
func (s *SignatureScanner) Classify(ctx context.Context, content []byte) (ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return ScanResult{}, err
	}
	for name, sig := range s.signatures {
		if bytes.Contains(content, sig) {
			return ScanResult{Infected: true, Signature: name}, nil
		}
	}
	return ScanResult{}, nil
}
