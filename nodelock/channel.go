package nodelock

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	sessionKeySize = 32
	nonceSize      = 12
	segmentSep     = "."
)

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithPrivateKey gives the channel both server capabilities: signing
// license messages and decrypting contact messages.
func WithPrivateKey(key *rsa.PrivateKey) ChannelOption {
	return func(c *Channel) {
		if key == nil {
			return
		}
		c.signer = key
		c.decrypter = key
	}
}

// WithSigner sets the signing capability, for keys held in an HSM or agent.
func WithSigner(s crypto.Signer) ChannelOption {
	return func(c *Channel) {
		c.signer = s
	}
}

// WithDecrypter sets the decryption capability.
func WithDecrypter(d crypto.Decrypter) ChannelOption {
	return func(c *Channel) {
		c.decrypter = d
	}
}

// Channel protects messages between a client and the license server.
//
// Client messages (contacts) are confidential: the payload is sealed with
// AES-256-GCM under a fresh key, and that key is wrapped with RSA-OAEP for
// the server's public key. Server messages (licenses) are authentic: the
// payload travels in the clear next to an RSA PKCS#1 v1.5 SHA-256
// signature. Clients only need the public key. A Channel is safe for
// concurrent use.
type Channel struct {
	public    *rsa.PublicKey
	signer    crypto.Signer
	decrypter crypto.Decrypter
}

// NewChannel creates a channel for the given server public key. With a nil
// key the public half of a configured signer is used.
func NewChannel(pub *rsa.PublicKey, opts ...ChannelOption) (*Channel, error) {
	c := &Channel{public: pub}
	for _, opt := range opts {
		opt(c)
	}
	if c.public == nil && c.signer != nil {
		if p, ok := c.signer.Public().(*rsa.PublicKey); ok {
			c.public = p
		}
	}
	if c.public == nil {
		return nil, fmt.Errorf("%w: public key", ErrNilArgument)
	}
	if c.public.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("%w: %d bit key is too small", ErrPublicKeyInvalid, c.public.N.BitLen())
	}
	return c, nil
}

// PublicKey returns the server public key.
func (c *Channel) PublicKey() *rsa.PublicKey { return c.public }

// CanSign reports whether the channel can produce server messages.
func (c *Channel) CanSign() bool { return c.signer != nil }

// CanDecrypt reports whether the channel can read client messages.
func (c *Channel) CanDecrypt() bool { return c.decrypter != nil }

// EncodeClientMessage seals plaintext for the server. Every call uses a new
// key and nonce, so equal inputs give different messages.
func (c *Channel) EncodeClientMessage(plaintext string) (string, error) {
	key := make([]byte, sessionKeySize)
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.public, key, nil)
	if err != nil {
		return "", fmt.Errorf("wrap session key: %w", err)
	}
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, len(wrapped)+nonceSize+len(plaintext)+aead.Overhead())
	out = append(out, wrapped...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecodeClientMessage opens a message produced by EncodeClientMessage.
// Anything after the first '.' is ignored.
func (c *Channel) DecodeClientMessage(message string) (string, error) {
	if c.decrypter == nil {
		return "", ErrPrivateKeyUnavailable
	}
	segment, _, _ := strings.Cut(strings.TrimSpace(message), segmentSep)
	raw, err := base64.StdEncoding.Strict().DecodeString(segment)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	wrappedSize := c.wrappedKeySize()
	if len(raw) < wrappedSize+nonceSize {
		return "", fmt.Errorf("%w: message too short", ErrInvalidData)
	}
	wrapped, nonce, sealed := raw[:wrappedSize], raw[wrappedSize:wrappedSize+nonceSize], raw[wrappedSize+nonceSize:]

	key, err := c.decrypter.Decrypt(rand.Reader, wrapped, &rsa.OAEPOptions{Hash: crypto.SHA256})
	if err != nil {
		return "", fmt.Errorf("%w: unwrap session key: %v", ErrInvalidData, err)
	}
	if len(key) != sessionKeySize {
		return "", fmt.Errorf("%w: session key has %d bytes", ErrInvalidData, len(key))
	}
	aead, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: payload is not UTF-8", ErrInvalidData)
	}
	return string(plain), nil
}

// EncodeServerMessage signs plaintext and returns "payload.signature", both
// base64 encoded.
func (c *Channel) EncodeServerMessage(plaintext string) (string, error) {
	if c.signer == nil {
		return "", ErrSigningUnavailable
	}
	digest := sha256.Sum256([]byte(plaintext))
	sig, err := c.signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	return base64.StdEncoding.EncodeToString([]byte(plaintext)) + segmentSep +
		base64.StdEncoding.EncodeToString(sig), nil
}

// DecodeServerMessage verifies a message produced by EncodeServerMessage
// and returns its payload.
func (c *Channel) DecodeServerMessage(message string) (string, error) {
	parts := strings.Split(strings.TrimSpace(message), segmentSep)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: expected 2 segments, got %d", ErrInvalidData, len(parts))
	}
	plain, err := base64.StdEncoding.Strict().DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: payload: %v", ErrInvalidData, err)
	}
	sig, err := base64.StdEncoding.Strict().DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: signature: %v", ErrInvalidData, err)
	}
	digest := sha256.Sum256(plain)
	if err := rsa.VerifyPKCS1v15(c.public, crypto.SHA256, digest[:], sig); err != nil {
		return "", ErrSignatureInvalid
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: payload is not UTF-8", ErrInvalidData)
	}
	return string(plain), nil
}

func (c *Channel) wrappedKeySize() int {
	if p, ok := c.decrypter.Public().(*rsa.PublicKey); ok {
		return p.Size()
	}
	return c.public.Size()
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
