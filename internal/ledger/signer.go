package ledger

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const minKeyBits = 2048

// Signer produces RSA-PSS signatures over canonical encodings. PSS salts are
// random, so two signatures of the same input differ; verification does not.
type Signer struct {
	priv *rsa.PrivateKey
}

// NewSigner wraps an existing private key.
func NewSigner(priv *rsa.PrivateKey) (*Signer, error) {
	if priv == nil {
		return nil, errors.New("signer: nil private key")
	}
	if priv.N.BitLen() < minKeyBits {
		return nil, fmt.Errorf("signer: key too small (%d bits, need >= %d)", priv.N.BitLen(), minKeyBits)
	}
	return &Signer{priv: priv}, nil
}

// LoadSigner reads a PEM-encoded RSA private key from path. When generate is
// true and the file does not exist, a fresh 2048-bit key is created and
// persisted so the chain remains verifiable across restarts.
func LoadSigner(path string, generate bool) (*Signer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && generate {
		priv, genErr := rsa.GenerateKey(rand.Reader, minKeyBits)
		if genErr != nil {
			return nil, fmt.Errorf("signer: generate key: %w", genErr)
		}
		block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}
		if writeErr := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); writeErr != nil {
			return nil, fmt.Errorf("signer: persist generated key: %w", writeErr)
		}
		return NewSigner(priv)
	}
	if err != nil {
		return nil, fmt.Errorf("signer: read key %s: %w", path, err)
	}
	priv, err := parsePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("signer: parse key %s: %w", path, err)
	}
	return NewSigner(priv)
}

func parsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
	return rsaKey, nil
}

// Sign returns a base64 RSA-PSS signature over the SHA-256 of payload.
func (s *Signer) Sign(payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPSS(rand.Reader, s.priv, crypto.SHA256, digest[:], nil)
	if err != nil {
		return "", fmt.Errorf("signer: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Public returns the public half for verification.
func (s *Signer) Public() *rsa.PublicKey {
	return &s.priv.PublicKey
}

// Verifier checks RSA-PSS signatures against a known public key.
type Verifier struct {
	pub *rsa.PublicKey
}

// NewVerifier wraps a public key handle.
func NewVerifier(pub *rsa.PublicKey) *Verifier {
	return &Verifier{pub: pub}
}

// Verify reports whether sigB64 is a valid signature over payload. Malformed
// signatures return false, never an error or panic.
func (v *Verifier) Verify(payload []byte, sigB64 string) bool {
	if v.pub == nil || sigB64 == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(payload)
	return rsa.VerifyPSS(v.pub, crypto.SHA256, digest[:], sig, nil) == nil
}
