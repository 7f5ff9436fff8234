package download

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/slok/assetpipe/internal/model"
)

// Decompress wraps r with the decompressor of the compression.
func Decompress(r io.Reader, c model.Compression) (io.ReadCloser, error) {
	switch c {
	case "", model.CompressionNone:
		return io.NopCloser(r), nil

	case model.CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil

	case model.CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("could not create zstd decoder: %w", err)
		}
		return zstdReadCloser{Decoder: dec}, nil

	default:
		return nil, fmt.Errorf("unsupported compression %q: %w", c, model.ErrNotValid)
	}
}

// Compress wraps w with the compressor of the compression, the returned writer must be closed
// to flush the compressed stream.
func Compress(w io.Writer, c model.Compression) (io.WriteCloser, error) {
	switch c {
	case "", model.CompressionNone:
		return nopWriteCloser{Writer: w}, nil

	case model.CompressionLZ4:
		return lz4.NewWriter(w), nil

	case model.CompressionZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("could not create zstd encoder: %w", err)
		}
		return enc, nil

	default:
		return nil, fmt.Errorf("unsupported compression %q: %w", c, model.ErrNotValid)
	}
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
