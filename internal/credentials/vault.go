// Package credentials resolves provider descriptors from stored
// configurations and is the single point where encrypted-at-rest API keys
// are decrypted.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/erenbertr/chatrelay/internal/storage"
)

// Decrypter turns an opaque key id into a usable secret.
type Decrypter interface {
	Decrypt(ctx context.Context, keyID string) (string, error)
}

// Vault stores provider API keys AES-GCM encrypted under a master key in
// the credentials collection.
type Vault struct {
	store storage.RecordStore
	aead  cipher.AEAD
}

var _ Decrypter = (*Vault)(nil)

// NewVault derives a 256-bit key from the master key material and opens the
// vault over the given store.
func NewVault(store storage.RecordStore, masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("master key is required")
	}
	sum := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Vault{store: store, aead: aead}, nil
}

// Store encrypts the secret and persists it, returning the opaque key id.
func (v *Vault) Store(ctx context.Context, secret string) (string, error) {
	ciphertext, err := v.Seal(secret)
	if err != nil {
		return "", err
	}
	return v.store.Insert(ctx, storage.CollectionCredentials, storage.Record{
		"ciphertext": ciphertext,
	})
}

// Seal encrypts a secret without persisting it. Used by cmd/keygen to
// produce config entries.
func (v *Vault) Seal(secret string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed secret produced by Seal.
func (v *Vault) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	if len(raw) < v.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plain, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}

// Decrypt implements Decrypter over the credentials collection.
func (v *Vault) Decrypt(ctx context.Context, keyID string) (string, error) {
	rec, err := v.store.FindOne(ctx, storage.CollectionCredentials, storage.Query{
		Where: map[string]any{"id": keyID},
	})
	if err != nil {
		return "", fmt.Errorf("credential %s: %w", keyID, err)
	}
	return v.Open(rec.String("ciphertext"))
}
