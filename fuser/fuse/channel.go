package fuse

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Channel is the shared handle to the kernel device. Reads block until the
// kernel has a request; each read returns exactly one message. Writes are
// atomic vectored writes, so replies and notifications from different
// goroutines may interleave freely without framing corruption. Reads must
// not race: callers either serialize reads or give each reader its own
// Clone.
type Channel interface {
	// Read blocks until the next request and fills p with exactly one
	// message.
	Read(p []byte) (int, error)

	// Writev writes bufs to the device as one atomic message.
	Writev(bufs ...[]byte) (int, error)

	// Clone duplicates the underlying descriptor so another reader can
	// block on the device independently.
	Clone() (Channel, error)

	// Close releases the descriptor. Closing a clone does not affect the
	// channel it was cloned from.
	Close() error
}

// RecvBufferSize returns the receive buffer size needed to hold any request
// under the given write limit: the largest write payload plus a page for the
// header and arguments.
func RecvBufferSize(maxWrite uint32) int {
	return int(maxWrite) + unix.Getpagesize()
}

// DevChannel is a Channel backed by a kernel device descriptor (usually
// /dev/fuse, but any descriptor with message-per-read semantics works, which
// tests use).
type DevChannel struct {
	log log.Logger

	fd      int
	closed  atomic.Bool
	onClose func()
}

var _ Channel = (*DevChannel)(nil)

// NewDevChannel wraps fd. onClose, if non-nil, runs after the descriptor is
// closed; the mount helper uses it to tear down the mountpoint.
func NewDevChannel(l log.Logger, fd int, onClose func()) *DevChannel {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &DevChannel{log: l, fd: fd, onClose: onClose}
}

// Read implements Channel. Errors come back as raw unix.Errno values so the
// session loop can classify transient conditions.
func (ch *DevChannel) Read(p []byte) (int, error) {
	return unix.Read(ch.fd, p)
}

// Writev implements Channel.
func (ch *DevChannel) Writev(bufs ...[]byte) (int, error) {
	return unix.Writev(ch.fd, bufs)
}

// Clone implements Channel. The clone shares the device but has its own
// descriptor, letting another worker block in Read independently. The clone
// carries no onClose action.
func (ch *DevChannel) Clone() (Channel, error) {
	nfd, err := unix.Dup(ch.fd)
	if err != nil {
		return nil, err
	}
	return &DevChannel{log: ch.log, fd: nfd}, nil
}

// Close implements Channel. Only the first call closes the descriptor.
func (ch *DevChannel) Close() (err error) {
	if ch.closed.CAS(false, true) {
		err = unix.Close(ch.fd)
		if ch.onClose != nil {
			ch.onClose()
		}
		level.Debug(ch.log).Log("msg", "closed device channel", "err", err)
	}
	return err
}
