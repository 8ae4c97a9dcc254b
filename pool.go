package divapack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ErrDecompression wraps every failure to inflate an entry payload.
var ErrDecompression = errors.New("decompression failed")

// grPool reuses gzip.Reader instances across entries.
// There is no usable zero value for gzip.Reader, so the pool starts empty and
// getGzipReader falls back to gzip.NewReader.
var grPool = sync.Pool{New: func() any { return nil }}

// bufPool reuses the scratch buffers that collect compressed output.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// getGzipReader obtains a gzip.Reader from the pool, reset onto src.
//
// Multistream is disabled so that bytes after the first gzip member are
// ignored rather than parsed as another member; some producers leave slack
// or block padding behind the stream.
func getGzipReader(src io.Reader) (*gzip.Reader, error) {
	if v := grPool.Get(); v != nil {
		zr := v.(*gzip.Reader)
		if err := zr.Reset(src); err == nil {
			zr.Multistream(false)
			return zr, nil
		}
		// Reset failed on a bad header; drop the reader and try fresh.
	}
	zr, err := gzip.NewReader(src)
	if err != nil {
		return nil, err
	}
	zr.Multistream(false)
	return zr, nil
}

func putGzipReader(zr *gzip.Reader) {
	_ = zr.Close()
	grPool.Put(zr)
}

// inflate decompresses one gzip member from src. sizeHint preallocates the
// output when the table declares an uncompressed size.
func inflate(src []byte, sizeHint int) ([]byte, error) {
	zr, err := getGzipReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	defer putGzipReader(zr)

	if sizeHint < 0 || sizeHint > len(src)*1032+64 {
		// Deflate cannot expand beyond ~1032:1; ignore an implausible hint.
		sizeHint = 0
	}
	out := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if _, err := io.Copy(out, zr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return out.Bytes(), nil
}

// deflate compresses data into a single gzip member stamped with modTime.
func deflate(data []byte, cfg *codecConfig) ([]byte, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	zw, err := gzip.NewWriterLevel(buf, cfg.level)
	if err != nil {
		return nil, err
	}
	zw.ModTime = cfg.modTime
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}
