// Package bytelimit implements the ByteCountingBody streaming adapter
// (spec §4.2): it counts bytes flowing from an inbound reader and fails
// fast once a declared ceiling is exceeded, so the provider sees a
// truncated stream rather than silently writing more than it should.
package bytelimit

import (
	"io"
	"sync/atomic"

	"github.com/vaultdrive/vaultdrive/internal/iometer"
	"github.com/vaultdrive/vaultdrive/xfererr"
)

// Body wraps an inbound io.Reader, counting bytes read from it and
// returning xfererr.OversizeStream once a buffer read would push the
// running total past maxAllowed. BytesReceived is the single source of
// truth for how much was actually written once the stream closes, per
// spec §4.2.
type Body struct {
	inner      *iometer.TransferReader
	received   int64
	maxAllowed int64
}

// New wraps r with a hard ceiling of maxAllowed bytes.
func New(r io.Reader, maxAllowed int64) *Body {
	b := &Body{maxAllowed: maxAllowed}
	b.inner = iometer.NewTransferReader(r, &b.received)
	return b
}

// Read satisfies io.Reader. It reads from the wrapped reader first, then
// checks received+n against the ceiling: if the buffer just read would
// exceed it, the iteration fails with xfererr.OversizeStream and the
// provider sees a truncated stream, per spec §4.2.
func (b *Body) Read(p []byte) (int, error) {
	n, err := b.inner.Read(p)
	if n > 0 {
		if atomic.LoadInt64(&b.received) > b.maxAllowed {
			return n, xfererr.Newf(xfererr.OversizeStream,
				"stream exceeded maximum allowed size of %d bytes", b.maxAllowed)
		}
	}
	return n, err
}

// Close closes the underlying reader if it is an io.Closer.
func (b *Body) Close() error {
	return b.inner.Close()
}

// BytesReceived returns the number of bytes actually read so far. Safe to
// call concurrently with Read; the authoritative value is only meaningful
// once the stream has closed.
func (b *Body) BytesReceived() int64 {
	return atomic.LoadInt64(&b.received)
}

// SetRateLimit throttles Read to at most bytesPerSec, once the initial
// burst is spent. Used to bound upload throughput per storage.Provider
// backend (see config.StorageConfig.UploadBytesPerSecLimit); a zero or
// negative value leaves the stream unthrottled.
func (b *Body) SetRateLimit(bytesPerSec float64) {
	if bytesPerSec <= 0 {
		return
	}
	b.inner.SetRateLimit(bytesPerSec)
}
