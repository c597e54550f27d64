package export

import (
	"fmt"
	"io"
	"strings"

	"bnla/internal/errors"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec names accepted for draw files.
const (
	CodecZstd = "zstd"
	CodecLZ4  = "lz4"
	CodecNone = "none"
)

// Extension returns the file suffix of a codec.
func Extension(codec string) string {
	switch codec {
	case CodecZstd:
		return ".zst"
	case CodecLZ4:
		return ".lz4"
	}
	return ""
}

// CodecFor infers the codec from a file name.
func CodecFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".zst"):
		return CodecZstd
	case strings.HasSuffix(path, ".lz4"):
		return CodecLZ4
	}
	return CodecNone
}

// ValidateCodec reports whether codec names a supported draws codec.
func ValidateCodec(codec string) error {
	switch codec {
	case CodecZstd, CodecLZ4, CodecNone, "":
		return nil
	}
	return errors.InvalidInput(fmt.Sprintf("unknown draws codec %q", codec))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps w in a streaming encoder. Closing the returned writer
// flushes the frame but does not close w.
func compressWriter(w io.Writer, codec string) (io.WriteCloser, error) {
	switch codec {
	case CodecZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errors.Wrap(err, "create zstd encoder")
		}
		return enc, nil
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	case CodecNone, "":
		return nopWriteCloser{w}, nil
	}
	return nil, ValidateCodec(codec)
}

// decompressReader wraps r in the decoder of codec.
func decompressReader(r io.Reader, codec string) (io.ReadCloser, error) {
	switch codec {
	case CodecZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrap(err, "create zstd decoder")
		}
		return dec.IOReadCloser(), nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CodecNone, "":
		return io.NopCloser(r), nil
	}
	return nil, ValidateCodec(codec)
}
