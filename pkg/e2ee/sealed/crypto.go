package sealed

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"github.com/zeebo/blake3"

	"github.com/tinyland-inc/mucclaw/pkg/storage"
)

const identityKey = "sealed/identity"

// Fingerprint identifies a device by the blake3 hash of its age public key.
func Fingerprint(publicKey string) string {
	sum := blake3.Sum256([]byte(publicKey))
	return hex.EncodeToString(sum[:])
}

// FormatFingerprint groups a fingerprint in blocks of eight for display.
func FormatFingerprint(fp string) string {
	var b strings.Builder
	for i := 0; i < len(fp); i += 8 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fp[i:min(i+8, len(fp))])
	}
	return b.String()
}

// loadIdentity returns the stored identity, generating and storing one on
// first use.
func loadIdentity(store storage.Store) (*age.X25519Identity, bool, error) {
	raw, err := store.Load(identityKey)
	switch {
	case err == nil:
		id, err := age.ParseX25519Identity(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, false, fmt.Errorf("parsing stored identity: %w", err)
		}
		return id, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, fmt.Errorf("loading identity: %w", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, false, fmt.Errorf("generating age keypair: %w", err)
	}
	if err := store.Store(identityKey, []byte(id.String())); err != nil {
		return nil, false, fmt.Errorf("storing identity: %w", err)
	}
	return id, true, nil
}

// seal encrypts plaintext to every public key and returns base64 ciphertext.
func seal(plaintext []byte, publicKeys []string) (string, error) {
	if len(publicKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(publicKeys))
	for _, key := range publicKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// open decrypts base64 ciphertext with identity.
func open(ciphertext string, identity age.Identity) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}
