package divapack

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// gzipModTime is the modification time stamped into every gzip member the
// encoder writes, so that output is reproducible byte for byte.
var gzipModTime = time.Unix(39, 0)

// codecConfig collects the tunables shared by Decode and Encode.
type codecConfig struct {
	caps    Capabilities
	random  io.Reader
	level   int
	modTime time.Time
}

func newCodecConfig(opts []Option) *codecConfig {
	cfg := &codecConfig{
		caps:    DefaultCapabilities,
		random:  rand.Reader,
		level:   gzip.BestCompression,
		modTime: gzipModTime,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *codecConfig) cipher() blockCipher { return blockCipher{random: c.random} }

// Option configures a single Decode or Encode call.
type Option func(*codecConfig)

// WithCapabilities overrides DefaultCapabilities.
//
// Passing Capabilities{Crypto: false} makes every FARC archive unreadable
// with ErrUnsupportedVariant, which is how callers opt out of AES entirely.
func WithCapabilities(caps Capabilities) Option {
	return func(c *codecConfig) { c.caps = caps }
}

// WithRandom replaces crypto/rand as the IV source for CBC encryption.
// Tests use it to obtain deterministic output.
func WithRandom(r io.Reader) Option {
	return func(c *codecConfig) {
		if r != nil {
			c.random = r
		}
	}
}

// WithCompressionLevel sets the gzip level used when encoding. The default
// is gzip.BestCompression.
func WithCompressionLevel(level int) Option {
	return func(c *codecConfig) { c.level = level }
}

// WithModTime sets the modification time written into gzip headers.
func WithModTime(t time.Time) Option {
	return func(c *codecConfig) { c.modTime = t }
}
