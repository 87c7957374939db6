package server

import (
	"fmt"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/cberner/fuser-sub000/fuser/fuse"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"
)

// replySender writes at most one reply for a request. The first Send wins;
// later calls are rejected. Finish is the backstop for requests that fall
// through dispatch without answering: it emits an EIO reply so the kernel
// never waits on an id forever.
type replySender struct {
	log   log.Logger
	ch    fuse.Channel
	codec fuse.Codec
	hdr   fuser.RequestHeader

	sent atomic.Bool
}

func newReplySender(l log.Logger, ch fuse.Channel, codec fuse.Codec, hdr fuser.RequestHeader) *replySender {
	return &replySender{log: l, ch: ch, codec: codec, hdr: hdr}
}

// Send encodes and writes the reply. code is zero for success; resp may be
// nil for operations with an empty success payload.
func (rs *replySender) Send(code fuser.Error, resp fuser.Response) error {
	if !rs.sent.CAS(false, true) {
		return fmt.Errorf("request %d already replied to", rs.hdr.RequestID)
	}

	out := fuser.ResponseHeader{Op: rs.hdr.Op, RequestID: rs.hdr.RequestID, Error: code}
	bufs, err := rs.codec.EncodeResponse(out, resp)
	if err != nil {
		return fmt.Errorf("encoding %s response: %w", rs.hdr.Op, err)
	}
	if _, err := rs.ch.Writev(bufs...); err != nil {
		return fmt.Errorf("writing %s response: %w", rs.hdr.Op, err)
	}
	return nil
}

// Finish sends an EIO reply if nothing was sent for the request yet.
func (rs *replySender) Finish() {
	if rs.sent.Load() {
		return
	}
	level.Warn(rs.log).Log("msg", "request completed without a reply, sending EIO", "op", rs.hdr.Op, "id", rs.hdr.RequestID)
	if err := rs.Send(fuser.ErrorIO, nil); err != nil {
		level.Error(rs.log).Log("msg", "failed to send fallback reply", "op", rs.hdr.Op, "id", rs.hdr.RequestID, "err", err)
	}
}
