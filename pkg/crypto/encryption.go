// Package crypto provides reversible encryption for secrets that are
// persisted inside event payloads (application client secrets, IDP client
// secrets). Hashing of credentials that never need to be read back lives in
// the command layer.
package crypto

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"gocloud.dev/secrets"
	_ "gocloud.dev/secrets/localsecrets" // base64key:// keeper for local keys

	"github.com/plaenen/iamcore/pkg/domain"
)

// EncryptionKeeper encrypts and decrypts domain.EncryptedValues.
//
// The keeper URL follows the Go CDK secrets scheme, e.g.
// "base64key://smGbjm71Nxd1Ig5FS0wj9SlbzAIrnolCz9bQQ6uAhl4=" for a local key
// or a cloud KMS URL in production deployments.
type EncryptionKeeper struct {
	keeper *secrets.Keeper
	keyID  string
}

// NewEncryptionKeeper opens a keeper by URL.
func NewEncryptionKeeper(ctx context.Context, url, keyID string) (*EncryptionKeeper, error) {
	if url == "" {
		return nil, domain.NewInvalidArgument(nil, "CRYPT-k0Url", "encryption keeper url missing")
	}
	keeper, err := secrets.OpenKeeper(ctx, url)
	if err != nil {
		return nil, domain.NewInternal(err, "CRYPT-o2Kpr", "unable to open encryption keeper")
	}
	return &EncryptionKeeper{keeper: keeper, keyID: keyID}, nil
}

// Encrypt wraps plaintext into an EncryptedValue.
func (k *EncryptionKeeper) Encrypt(ctx context.Context, plaintext []byte) (*domain.EncryptedValue, error) {
	crypted, err := k.keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, domain.NewInternal(err, "CRYPT-e9Fnc", "unable to encrypt value")
	}
	return &domain.EncryptedValue{
		Algorithm: "gocdk",
		KeyID:     k.keyID,
		Crypted:   crypted,
	}, nil
}

// Decrypt unwraps an EncryptedValue produced by this keeper's key.
func (k *EncryptionKeeper) Decrypt(ctx context.Context, value *domain.EncryptedValue) ([]byte, error) {
	if value == nil {
		return nil, domain.NewInvalidArgument(nil, "CRYPT-d1Nil", "no value to decrypt")
	}
	plaintext, err := k.keeper.Decrypt(ctx, value.Crypted)
	if err != nil {
		return nil, domain.NewInternal(err, "CRYPT-d4Ecr", "unable to decrypt value")
	}
	return plaintext, nil
}

// Close releases the keeper.
func (k *EncryptionKeeper) Close() error {
	return k.keeper.Close()
}

// GenerateClientSecret returns a URL-safe random secret of 32 bytes entropy.
func GenerateClientSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.NewInternal(err, "CRYPT-g7Rnd", "unable to read random bytes")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
