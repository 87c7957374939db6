package server

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// dispatcher routes one decoded request through the middleware chain to the
// handler and guarantees the kernel sees exactly one reply for it.
type dispatcher struct {
	log     log.Logger
	mw      Middleware
	invoker Invoker
	acl     SessionACL
	owner   uint32
	timeout time.Duration
}

// Dispatch handles a single regular request. Init and destroy never reach
// here; the session loop consumes them.
func (d *dispatcher) Dispatch(ctx context.Context, hdr fuser.RequestHeader, req fuser.Request, rs *replySender) {
	if hdr.Op.NoReply() {
		// Forget-family traffic carries no reply; drive it through the
		// middleware chain and move on.
		defer func() {
			if r := recover(); r != nil {
				level.Error(d.log).Log("msg", "handler panicked", "op", hdr.Op, "id", hdr.RequestID, "panic", r)
			}
		}()
		_, _ = d.mw.HandleRequest(ctx, &hdr, req, d.invoker)
		return
	}

	defer rs.Finish()
	defer func() {
		if r := recover(); r != nil {
			level.Error(d.log).Log("msg", "handler panicked", "op", hdr.Op, "id", hdr.RequestID, "panic", r)
		}
	}()

	if !d.acl.allows(&hdr, d.owner) {
		if err := rs.Send(fuser.ErrorUnauthorized, nil); err != nil {
			level.Error(d.log).Log("msg", "failed to send reply", "op", hdr.Op, "id", hdr.RequestID, "err", err)
		}
		return
	}

	switch hdr.Op {
	case fuser.OpInterrupt, fuser.OpNotifyReply, fuser.OpCUSEInit:
		// No request cancellation or retrieve support at this layer. The
		// kernel falls back to waiting for the original reply.
		if err := rs.Send(fuser.ErrorUnimplemented, nil); err != nil {
			level.Error(d.log).Log("msg", "failed to send reply", "op", hdr.Op, "id", hdr.RequestID, "err", err)
		}
		return
	case fuser.OpIoctl:
		// Unrestricted ioctls let the kernel demand retries against buffers
		// it picks, which this layer does not support.
		if ioctl, ok := req.(*fuser.IoctlRequest); ok && ioctl.Flags&fuser.DeviceControlUnrestricted != 0 {
			if err := rs.Send(fuser.ErrorUnimplemented, nil); err != nil {
				level.Error(d.log).Log("msg", "failed to send reply", "op", hdr.Op, "id", hdr.RequestID, "err", err)
			}
			return
		}
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.mw.HandleRequest(ctx, &hdr, req, d.invoker)
	if serr := rs.Send(errorForResponse(err), resp); serr != nil {
		level.Error(d.log).Log("msg", "failed to send reply", "op", hdr.Op, "id", hdr.RequestID, "err", serr)
	}
}

func errorForResponse(err error) fuser.Error {
	if err == nil {
		return 0
	}

	// Check for common system-level errors.
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fuser.ErrorAborted
	case errors.Is(err, context.Canceled):
		return fuser.ErrorInterrupted
	case os.IsNotExist(err):
		return fuser.ErrorNotExist
	case os.IsPermission(err):
		return fuser.ErrorNotPermitted
	case errors.Is(err, os.ErrNotExist):
		return fuser.ErrorNotExist
	case errors.Is(err, io.EOF):
		return 0
	}

	var fe fuser.Error
	if errors.As(err, &fe) {
		return fe
	}
	return fuser.ErrorIO
}
