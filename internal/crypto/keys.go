package crypto

import (
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

const keyBits = 2048

// Keypair is the server-side RSA keypair whose public half is advertised to
// clients for credential encryption.
type Keypair struct {
	priv *rsa.PrivateKey
}

// GenerateKeypair creates an ephemeral keypair.
func GenerateKeypair() (*Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// LoadOrCreateKeypair reads a PEM-encoded RSA private key from path,
// generating and persisting a new one when the file does not exist.
func LoadOrCreateKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		kp, genErr := GenerateKeypair()
		if genErr != nil {
			return nil, genErr
		}
		if saveErr := kp.save(path); saveErr != nil {
			return nil, saveErr
		}
		return kp, nil
	}
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

func (k *Keypair) save(path string) error {
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(k.priv),
	}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

// PublicKeySPKI returns the base64-encoded SPKI DER of the public key, the
// format clients import.
func (k *Keypair) PublicKeySPKI() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&k.priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecryptCredential reverses Encryptor.EncryptCredential.
func (k *Keypair) DecryptCredential(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.priv, raw, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plain), nil
}
