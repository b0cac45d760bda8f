package keyvault

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/aussiebroadwan/signet/pkg/cryptox"
	"github.com/aussiebroadwan/signet/pkg/idx"
)

var (
	// ErrKeyExists reports an attempt to generate a key under a name that is
	// already taken. Rotation means picking a new prefix, never overwriting.
	ErrKeyExists = errors.New("keyvault: key already exists")

	// ErrKeyLoad reports a private key that could not be read or parsed from
	// its handle. Not recoverable by retrying the same signing attempt.
	ErrKeyLoad = errors.New("keyvault: failed to load private key")
)

const (
	// DefaultBits is the RSA key size used when none is configured.
	DefaultBits = 2048

	privateKeyPerm = 0o600
	publicKeyPerm  = 0o644
	keyDirPerm     = 0o700
)

// Options configures a Vault.
type Options struct {
	// Dir is the key storage directory. Created (0700) if absent.
	Dir string

	// Bits is the RSA key size for newly generated pairs. Defaults to 2048.
	Bits int

	// MaxConcurrentSigns bounds how many RSA signing operations may run at
	// once. Signing is CPU-bound, so unbounded concurrency hurts tail latency
	// under load. Defaults to GOMAXPROCS.
	MaxConcurrentSigns int64

	// EncryptAtRest stores private keys AES-256-GCM encrypted under the
	// configured master key instead of as plaintext PEM.
	EncryptAtRest bool
}

// Vault owns RSA key material on disk. Private keys never leave the package;
// callers hold an opaque handle (the key path) and submit digests for signing.
type Vault struct {
	dir     string
	bits    int
	encrypt bool
	signSem *semaphore.Weighted
}

// KeyPair is the public result of a key generation. The private key stays on
// disk; Handle is a path reference to it, not the material.
type KeyPair struct {
	Handle             string
	PublicKeyPEM       string
	PublicKeyDERBase64 string
}

// New creates a Vault rooted at opts.Dir, creating the directory if needed.
func New(opts Options) (*Vault, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("keyvault: Dir is required")
	}
	if opts.Bits <= 0 {
		opts.Bits = DefaultBits
	}
	if opts.MaxConcurrentSigns <= 0 {
		opts.MaxConcurrentSigns = int64(runtime.GOMAXPROCS(0))
	}

	if err := os.MkdirAll(opts.Dir, keyDirPerm); err != nil {
		return nil, fmt.Errorf("keyvault: failed to create key directory %s: %w", opts.Dir, err)
	}

	return &Vault{
		dir:     opts.Dir,
		bits:    opts.Bits,
		encrypt: opts.EncryptAtRest,
		signSem: semaphore.NewWeighted(opts.MaxConcurrentSigns),
	}, nil
}

// Generate creates a new RSA key pair and persists it under namePrefix:
// the private key as <prefix>.pem (or <prefix>.pem.enc when encrypting at
// rest), the public key as <prefix>.pub.pem and <prefix>.pub.der.
//
// An empty namePrefix gets a generated "key_<ulid>" name. Generating under an
// existing prefix fails with ErrKeyExists; a pair, once written, is immutable.
func (v *Vault) Generate(ctx context.Context, namePrefix string) (KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return KeyPair{}, err
	}
	if namePrefix == "" {
		namePrefix = "key_" + strings.ToLower(idx.New().String())
	}
	if strings.ContainsAny(namePrefix, `/\`) {
		return KeyPair{}, fmt.Errorf("keyvault: invalid name prefix %q", namePrefix)
	}

	privPath := filepath.Join(v.dir, namePrefix+".pem")
	if v.encrypt {
		privPath += ".enc"
	}

	// Reserve the name up front so concurrent generations with the same
	// prefix cannot both win, and an existing key is never clobbered.
	reservation, err := os.OpenFile(privPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, privateKeyPerm)
	if err != nil {
		if os.IsExist(err) {
			return KeyPair{}, fmt.Errorf("%w: %s", ErrKeyExists, privPath)
		}
		return KeyPair{}, fmt.Errorf("keyvault: failed to reserve key file %s: %w", privPath, err)
	}
	_ = reservation.Close()

	key, err := cryptox.GenerateRSAKey(v.bits)
	if err != nil {
		_ = os.Remove(privPath)
		return KeyPair{}, err
	}

	privData := cryptox.EncodePrivateKeyPEM(key)
	if v.encrypt {
		privData, err = cryptox.EncryptPrivateKey(privData)
		if err != nil {
			_ = os.Remove(privPath)
			return KeyPair{}, fmt.Errorf("keyvault: failed to encrypt private key: %w", err)
		}
	}

	pubPEM, err := cryptox.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		_ = os.Remove(privPath)
		return KeyPair{}, err
	}
	pubDER, err := cryptox.EncodePublicKeyDER(&key.PublicKey)
	if err != nil {
		_ = os.Remove(privPath)
		return KeyPair{}, err
	}

	// Private key first: written to a temp file then renamed over the
	// reservation, so a crash mid-write never leaves a partial key readable
	// as valid.
	if err := writeFileAtomic(privPath, privData, privateKeyPerm); err != nil {
		_ = os.Remove(privPath)
		return KeyPair{}, fmt.Errorf("keyvault: failed to write private key: %w", err)
	}

	pubPEMPath := filepath.Join(v.dir, namePrefix+".pub.pem")
	if err := writeFileAtomic(pubPEMPath, pubPEM, publicKeyPerm); err != nil {
		return KeyPair{}, fmt.Errorf("keyvault: failed to write public key PEM: %w", err)
	}

	pubDERPath := filepath.Join(v.dir, namePrefix+".pub.der")
	if err := writeFileAtomic(pubDERPath, pubDER, publicKeyPerm); err != nil {
		return KeyPair{}, fmt.Errorf("keyvault: failed to write public key DER: %w", err)
	}

	return KeyPair{
		Handle:             privPath,
		PublicKeyPEM:       string(pubPEM),
		PublicKeyDERBase64: base64.StdEncoding.EncodeToString(pubDER),
	}, nil
}

// SignDigest signs an externally computed digest with the private key behind
// handle. The digest must have been produced with the named algorithm by the
// caller; that binding is a documented trust boundary and is not re-checked
// here beyond digest length.
//
// Signing waits on a bounded semaphore, honouring ctx cancellation while
// queued.
func (v *Vault) SignDigest(ctx context.Context, digest []byte, algorithm, handle string) ([]byte, error) {
	// Reject bad algorithms before queueing for a signing slot.
	if _, err := cryptox.DigestHash(algorithm); err != nil {
		return nil, err
	}

	key, err := v.loadPrivateKey(handle)
	if err != nil {
		return nil, err
	}

	if err := v.signSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer v.signSem.Release(1)

	return cryptox.SignDigest(key, algorithm, digest)
}

// VerifySignature reports whether signature is valid over digest for the
// given PEM-encoded public key. Malformed input is a negative result, not an
// error.
func (v *Vault) VerifySignature(digest []byte, algorithm string, signature []byte, publicKeyPEM []byte) bool {
	pub, err := cryptox.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return false
	}
	return cryptox.VerifyDigest(pub, algorithm, digest, signature)
}

// PublicKeyPEM recovers the public key PEM for a private key handle. Used for
// signature re-verification without handing out private material.
func (v *Vault) PublicKeyPEM(handle string) ([]byte, error) {
	key, err := v.loadPrivateKey(handle)
	if err != nil {
		return nil, err
	}
	return cryptox.EncodePublicKeyPEM(&key.PublicKey)
}

func (v *Vault) loadPrivateKey(handle string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(handle)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyLoad, handle, err)
	}

	if strings.HasSuffix(handle, ".enc") {
		data, err = cryptox.DecryptPrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyLoad, handle, err)
		}
	}

	parsed, err := cryptox.ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyLoad, handle, err)
	}
	return parsed, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
