package snapshot

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec transforms snapshot bytes on their way to and from the medium.
// Codecs sit outside the checksum contract: the checksum is verified on the
// decoded envelope, so a codec may compress or encrypt freely.
type Codec interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Identity passes bytes through unchanged.
type Identity struct{}

func (Identity) Name() string                       { return "identity" }
func (Identity) Encode(data []byte) ([]byte, error) { return data, nil }
func (Identity) Decode(data []byte) ([]byte, error) { return data, nil }

// Zstd compresses snapshots with zstandard.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd builds a zstd codec.
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (z *Zstd) Name() string { return "zstd" }

func (z *Zstd) Encode(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z *Zstd) Decode(data []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// KeySize is the length of a Sealed key in bytes.
const KeySize = chacha20poly1305.KeySize

// Sealed encrypts snapshots with XChaCha20-Poly1305. The random nonce is
// stored in front of the ciphertext.
type Sealed struct {
	key []byte
}

// NewSealed builds an encrypting codec from a 32-byte key.
func NewSealed(key []byte) (*Sealed, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealed codec: key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Sealed{key: append([]byte(nil), key...)}, nil
}

func (s *Sealed) Name() string { return "sealed" }

func (s *Sealed) Encode(data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

func (s *Sealed) Decode(data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("sealed payload too short")
	}
	nonce, ct := data[:aead.NonceSize()], data[aead.NonceSize():]
	out, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}
	return out, nil
}

// Chain applies codecs in order on Encode and in reverse on Decode.
type Chain []Codec

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, cd := range c {
		names[i] = cd.Name()
	}
	return strings.Join(names, "+")
}

func (c Chain) Encode(data []byte) ([]byte, error) {
	var err error
	for _, cd := range c {
		if data, err = cd.Encode(data); err != nil {
			return nil, fmt.Errorf("%s encode: %w", cd.Name(), err)
		}
	}
	return data, nil
}

func (c Chain) Decode(data []byte) ([]byte, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		if data, err = c[i].Decode(data); err != nil {
			return nil, fmt.Errorf("%s decode: %w", c[i].Name(), err)
		}
	}
	return data, nil
}
