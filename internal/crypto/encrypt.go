// Package crypto handles the public-key encryption of credentials in
// transit: the client-side encryptor and the server-side keypair that
// decrypts what the encryptor produced.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrKeyUnavailable is returned when the backend's public key cannot be
// fetched. There is no plaintext fallback: without the key, no credential
// leaves the process.
var ErrKeyUnavailable = errors.New("public key unavailable")

// Encryptor encrypts credentials with the backend's public key before they
// travel. The key is fetched once and cached for the process lifetime; a
// failed fetch is retried on the next call.
type Encryptor struct {
	keyURL string
	client *http.Client

	mu  sync.Mutex
	key *rsa.PublicKey
}

// NewEncryptor creates an Encryptor fetching the key from keyURL.
func NewEncryptor(keyURL string, client *http.Client) *Encryptor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Encryptor{keyURL: keyURL, client: client}
}

// EncryptCredential encrypts plain with RSA-OAEP over SHA-256 and returns
// the base64-encoded ciphertext.
func (e *Encryptor) EncryptCredential(ctx context.Context, plain string) (string, error) {
	key, err := e.publicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, []byte(plain), nil)
	if err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (e *Encryptor) publicKey(ctx context.Context) (*rsa.PublicKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key != nil {
		return e.key, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.keyURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode key response: %w", err)
	}
	der, err := base64.StdEncoding.DecodeString(body.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected key type %T", pub)
	}

	e.key = rsaKey
	return rsaKey, nil
}
