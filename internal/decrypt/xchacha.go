package decrypt

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/slok/assetpipe/internal/log"
	"github.com/slok/assetpipe/internal/model"
)

// BlobVersion is the first byte of memory encrypted bundles, authenticated as additional data.
const BlobVersion byte = 0x01

const keyDerivationContext = "assetpipe 2026-01-01 bundle encryption key v1"

// XChaChaServicesConfig is the configuration of the XChaCha decryption services.
type XChaChaServicesConfig struct {
	// MasterKey derives the per bundle keys.
	MasterKey []byte
	// OffsetHeaderSize is the size of the header that file offset bundles are prefixed with.
	OffsetHeaderSize uint64
	// ReadBufferSize is the read buffer size recommended for stream loads.
	ReadBufferSize uint32
	Logger         log.Logger
}

func (c *XChaChaServicesConfig) defaults() error {
	if len(c.MasterKey) != KeySize {
		return fmt.Errorf("master key must be %d bytes", KeySize)
	}
	if c.OffsetHeaderSize == 0 {
		c.OffsetHeaderSize = 64
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 32 * 1024
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "decrypt.XChaCha"})
	return nil
}

// XChaChaServices encrypts and decrypts bundle files with keys derived per bundle:
//
//   - File offset: [random header][bundle], the header only hides the bundle magic.
//   - Memory: [version][XChaCha20-Poly1305 nonce][ciphertext+tag], the bundle name is authenticated.
//   - Stream: [ChaCha20 nonce][ciphertext], seekable so the engine can read it in chunks.
type XChaChaServices struct {
	masterKey        []byte
	offsetHeaderSize uint64
	readBufferSize   uint32
	logger           log.Logger
}

// NewXChaChaServices returns new XChaCha decryption services.
func NewXChaChaServices(cfg XChaChaServicesConfig) (*XChaChaServices, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &XChaChaServices{
		masterKey:        cfg.MasterKey,
		offsetHeaderSize: cfg.OffsetHeaderSize,
		readBufferSize:   cfg.ReadBufferSize,
		logger:           cfg.Logger,
	}, nil
}

func (x *XChaChaServices) LoadFromFileOffset(fi FileInfo) (uint64, error) {
	return x.offsetHeaderSize, nil
}

func (x *XChaChaServices) LoadFromMemory(fi FileInfo) ([]byte, error) {
	blob, err := os.ReadFile(fi.FilePath)
	if err != nil {
		return nil, fmt.Errorf("could not read encrypted bundle: %w", err)
	}

	aead, err := chacha20poly1305.NewX(x.bundleKey(fi.BundleName))
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	headerSize := 1 + chacha20poly1305.NonceSizeX
	if len(blob) < headerSize+aead.Overhead() {
		return nil, fmt.Errorf("encrypted bundle %s is too short", fi.BundleName)
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("unsupported encrypted bundle version %d", blob[0])
	}

	nonce := blob[1:headerSize]
	data, err := aead.Open(nil, nonce, blob[headerSize:], blobAAD(fi.BundleName))
	if err != nil {
		return nil, fmt.Errorf("could not decrypt bundle %s: %w", fi.BundleName, err)
	}

	return data, nil
}

func (x *XChaChaServices) LoadFromStream(fi FileInfo) (io.ReadSeekCloser, error) {
	f, err := os.Open(fi.FilePath)
	if err != nil {
		return nil, fmt.Errorf("could not open encrypted bundle: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat encrypted bundle: %w", err)
	}
	if info.Size() < chacha20.NonceSize {
		f.Close()
		return nil, fmt.Errorf("encrypted bundle %s is too short", fi.BundleName)
	}

	nonce := make([]byte, chacha20.NonceSize)
	if _, err := f.ReadAt(nonce, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not read stream nonce: %w", err)
	}

	return &streamReader{
		file:  f,
		key:   x.bundleKey(fi.BundleName),
		nonce: nonce,
		size:  info.Size() - chacha20.NonceSize,
	}, nil
}

func (x *XChaChaServices) ManagedReadBufferSize() uint32 { return x.readBufferSize }

// Encode encodes a bundle file for the load method.
func (x *XChaChaServices) Encode(method model.LoadMethod, bundleName string, data []byte) ([]byte, error) {
	switch method {
	case model.LoadMethodNormal:
		return data, nil
	case model.LoadMethodFileOffset:
		return x.EncodeFileOffset(data)
	case model.LoadMethodMemory:
		return x.EncodeMemory(bundleName, data)
	case model.LoadMethodStream:
		return x.EncodeStream(bundleName, data)
	default:
		return nil, fmt.Errorf("unknown load method %q: %w", method, model.ErrNotValid)
	}
}

// EncodeFileOffset prefixes the bundle with a random header.
func (x *XChaChaServices) EncodeFileOffset(data []byte) ([]byte, error) {
	out := make([]byte, int(x.offsetHeaderSize), int(x.offsetHeaderSize)+len(data))
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("generating random header: %w", err)
	}
	return append(out, data...), nil
}

// EncodeMemory seals the bundle with XChaCha20-Poly1305.
func (x *XChaChaServices) EncodeMemory(bundleName string, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(x.bundleKey(bundleName))
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	out := make([]byte, 1+len(nonce), 1+len(nonce)+len(data)+aead.Overhead())
	out[0] = BlobVersion
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], data, blobAAD(bundleName)), nil
}

// EncodeStream encrypts the bundle with ChaCha20.
func (x *XChaChaServices) EncodeStream(bundleName string, data []byte) ([]byte, error) {
	nonce := make([]byte, chacha20.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	c, err := chacha20.NewUnauthenticatedCipher(x.bundleKey(bundleName), nonce)
	if err != nil {
		return nil, fmt.Errorf("creating ChaCha20 cipher: %w", err)
	}

	out := make([]byte, len(nonce)+len(data))
	copy(out, nonce)
	c.XORKeyStream(out[len(nonce):], data)
	return out, nil
}

func (x *XChaChaServices) bundleKey(bundleName string) []byte {
	material := make([]byte, 0, len(x.masterKey)+len(bundleName))
	material = append(material, x.masterKey...)
	material = append(material, bundleName...)

	key := make([]byte, chacha20poly1305.KeySize)
	blake3.DeriveKey(keyDerivationContext, material, key)
	return key
}

func blobAAD(bundleName string) []byte {
	aad := make([]byte, 0, 1+len(bundleName))
	aad = append(aad, BlobVersion)
	return append(aad, bundleName...)
}

// streamReader decrypts a ChaCha20 encrypted file on the fly.
type streamReader struct {
	file  *os.File
	key   []byte
	nonce []byte
	size  int64

	pos    int64
	cipher *chacha20.Cipher
}

func (s *streamReader) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}

	n, err := s.file.ReadAt(p, chacha20.NonceSize+s.pos)
	if n > 0 {
		if s.cipher == nil {
			if cerr := s.resetCipher(); cerr != nil {
				return 0, cerr
			}
		}
		s.cipher.XORKeyStream(p[:n], p[:n])
		s.pos += int64(n)
	}
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (s *streamReader) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = s.size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative position %d", pos)
	}

	if pos != s.pos {
		s.pos = pos
		s.cipher = nil
	}
	return pos, nil
}

func (s *streamReader) Close() error {
	return s.file.Close()
}

// resetCipher positions a new keystream at the current read position.
func (s *streamReader) resetCipher() error {
	c, err := chacha20.NewUnauthenticatedCipher(s.key, s.nonce)
	if err != nil {
		return fmt.Errorf("creating ChaCha20 cipher: %w", err)
	}

	c.SetCounter(uint32(s.pos / 64))
	if skip := s.pos % 64; skip > 0 {
		var discard [64]byte
		c.XORKeyStream(discard[:skip], discard[:skip])
	}

	s.cipher = c
	return nil
}
