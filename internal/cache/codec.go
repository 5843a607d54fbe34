package cache

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec transforms a value on its way into and out of a store. Encode and
// Decode must be symmetric: Decode(Encode(v)) == v.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Identity is the default no-op codec.
var Identity Codec = identityCodec{}

type identityCodec struct{}

func (identityCodec) Encode(data []byte) ([]byte, error) { return data, nil }
func (identityCodec) Decode(data []byte) ([]byte, error) { return data, nil }

// ZstdCodec compresses values with zstd.
type ZstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCodec creates a reusable zstd codec.
func NewZstdCodec() (*ZstdCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ZstdCodec{enc: enc, dec: dec}, nil
}

func (c *ZstdCodec) Encode(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (c *ZstdCodec) Decode(data []byte) ([]byte, error) {
	return c.dec.DecodeAll(data, nil)
}

// ChaChaCodec encrypts values with XChaCha20-Poly1305. The random nonce is
// prepended to the ciphertext.
type ChaChaCodec struct {
	aead cipher.AEAD
}

// NewChaChaCodec creates an encrypting codec. key must be 32 bytes.
func NewChaChaCodec(key []byte) (*ChaChaCodec, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &ChaChaCodec{aead: aead}, nil
}

func (c *ChaChaCodec) Encode(data []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, data, nil), nil
}

func (c *ChaChaCodec) Decode(data []byte) ([]byte, error) {
	if len(data) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:chacha20poly1305.NonceSizeX], data[chacha20poly1305.NonceSizeX:]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}

// chain applies codecs in order on Encode and in reverse on Decode.
type chain []Codec

func (cs chain) Encode(data []byte) ([]byte, error) {
	var err error
	for _, c := range cs {
		if data, err = c.Encode(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (cs chain) Decode(data []byte) ([]byte, error) {
	var err error
	for i := len(cs) - 1; i >= 0; i-- {
		if data, err = cs[i].Decode(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// newCodec builds the encode pipeline for a namespace: compression first,
// then encryption.
func newCodec(cfg Config, encryptionKey []byte) (Codec, error) {
	var cs chain
	if cfg.Compression {
		z, err := NewZstdCodec()
		if err != nil {
			return nil, err
		}
		cs = append(cs, z)
	}
	if cfg.Encryption {
		c, err := NewChaChaCodec(encryptionKey)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	if len(cs) == 0 {
		return Identity, nil
	}
	return cs, nil
}
