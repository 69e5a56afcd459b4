package imageio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"

	"github.com/klauspost/compress/zstd"

	"github.com/cwbudde/nlmdenoise/internal/nlm"
)

// The .nlmz format stores a float buffer losslessly:
// a zstd stream of magic "NLMZ", a version byte, width and height as
// uint32 little endian, then Width*Height*3 float32 little endian values.
const (
	nlmzMagic   = "NLMZ"
	nlmzVersion = 1

	// maxNLMZPixels bounds the allocation a header may request (64 Mpx, 768 MiB of float32)
	maxNLMZPixels = 1 << 26
)

// ErrBadFormat is returned when a .nlmz stream is malformed
var ErrBadFormat = errors.New("malformed nlmz stream")

// EncodeNLMZ writes img to w as a zstd-compressed float buffer
func EncodeNLMZ(w io.Writer, img *nlm.Image) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(runtime.NumCPU()))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	bw := bufio.NewWriterSize(enc, 64*1024)

	var header [13]byte
	copy(header[0:4], nlmzMagic)
	header[4] = nlmzVersion
	binary.LittleEndian.PutUint32(header[5:9], uint32(img.Width))
	binary.LittleEndian.PutUint32(header[9:13], uint32(img.Height))
	if _, err := bw.Write(header[:]); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}

	var buf [4]byte
	for _, v := range img.Pix {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			enc.Close()
			return fmt.Errorf("failed to write pixels: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("failed to flush pixels: %w", err)
	}
	return enc.Close()
}

// DecodeNLMZ reads a float buffer written by EncodeNLMZ
func DecodeNLMZ(r io.Reader) (*nlm.Image, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	var header [13]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadFormat, err)
	}
	if string(header[0:4]) != nlmzMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadFormat, header[0:4])
	}
	if header[4] != nlmzVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, header[4])
	}

	w := uint64(binary.LittleEndian.Uint32(header[5:9]))
	h := uint64(binary.LittleEndian.Uint32(header[9:13]))
	if w*h > maxNLMZPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrBadFormat, w, h, maxNLMZPixels)
	}
	width, height := int(w), int(h)
	img, err := nlm.NewImage(width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}

	var buf [4]byte
	for i := range img.Pix {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: pixel data: %v", ErrBadFormat, err)
		}
		img.Pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
	}

	return img, nil
}
