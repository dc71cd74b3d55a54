package certification

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/junobuild/satellite/common/faults"
)

// CertifiedData holds the externally-exposed root hash. Every tree
// mutation pushes the new root here so concurrent reads always observe a
// certificate consistent with the tree they witness against.
type CertifiedData struct {
	mu   sync.RWMutex
	root [32]byte
}

// Set replaces the exposed root hash
func (d *CertifiedData) Set(root [32]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = root
}

// Root returns the exposed root hash
func (d *CertifiedData) Root() [32]byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// Certifier produces the certificate bytes embedded in certification
// headers for a given root hash. Deployments behind a platform signer
// inject their own implementation.
type Certifier interface {
	Certificate(root [32]byte) ([]byte, error)
}

// LocalCertifier signs the prefixed root hash with an ed25519 key. The
// certificate is a deterministic CBOR map carrying the root, a timestamp
// and the signature, mirroring the shape clients expect to unwrap.
type LocalCertifier struct {
	key ed25519.PrivateKey
	now func() time.Time
}

// NewLocalCertifier creates a certifier from a seed, generating a fresh
// key when the seed is empty
func NewLocalCertifier(seed string) (*LocalCertifier, error) {
	var key ed25519.PrivateKey
	if seed == "" {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, faults.Certification("signing key generation: %v", err)
		}
		key = generated
	} else {
		digest := sha256.Sum256([]byte(seed))
		key = ed25519.NewKeyFromSeed(digest[:])
	}
	return &LocalCertifier{key: key, now: time.Now}, nil
}

// PublicKey returns the verification key for the certificates
func (c *LocalCertifier) PublicKey() ed25519.PublicKey {
	return c.key.Public().(ed25519.PublicKey)
}

// Certificate signs the domain-separated root hash
func (c *LocalCertifier) Certificate(root [32]byte) ([]byte, error) {
	message := append(domainSep("ic-state-root"), root[:]...)
	signature := ed25519.Sign(c.key, message)

	cert, err := encMode.Marshal(cbor.Tag{Number: 55799, Content: map[string]interface{}{
		"tree":      root[:],
		"time":      uint64(c.now().UnixNano()),
		"signature": signature,
	}})
	if err != nil {
		return nil, faults.Certification("certificate serialization: %v", err)
	}
	return cert, nil
}
