package server

import (
	"context"
	"fmt"

	"github.com/cberner/fuser-sub000/fuser"
)

// Middleware hooks into requests.
type Middleware interface {
	// HandleRequest handles an individual request.
	HandleRequest(ctx context.Context, hdr *fuser.RequestHeader, req fuser.Request, invoker Invoker) (fuser.Response, error)
}

// Invoker is called by Middleware to complete requests.
type Invoker func(ctx context.Context, hdr *fuser.RequestHeader, req fuser.Request) (fuser.Response, error)

// FuncMiddleware is a function that implements Middleware.
type FuncMiddleware func(ctx context.Context, hdr *fuser.RequestHeader, req fuser.Request, i Invoker) (fuser.Response, error)

func (f FuncMiddleware) HandleRequest(ctx context.Context, h *fuser.RequestHeader, req fuser.Request, i Invoker) (fuser.Response, error) {
	return f(ctx, h, req, i)
}

// handlerInvoker converts h into an Invoker.
func handlerInvoker(h Handler) Invoker {
	return func(ctx context.Context, header *fuser.RequestHeader, req fuser.Request) (resp fuser.Response, err error) {
		switch header.Op {
		case fuser.OpLookup:
			req, _ := req.(*fuser.LookupRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Lookup(ctx, header, req)

		case fuser.OpForget:
			// Unlike other requests, Forget has no response so we return immediately
			// once it's done.
			req, _ := req.(*fuser.ForgetRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			h.Forget(ctx, header, req)

		case fuser.OpBatchForget:
			// Like Forget, BatchForget has no response.
			req, _ := req.(*fuser.BatchForgetRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			h.BatchForget(ctx, header, req)

		case fuser.OpGetattr:
			req, _ := req.(*fuser.GetattrRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Getattr(ctx, header, req)

		case fuser.OpSetattr:
			req, _ := req.(*fuser.SetattrRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Setattr(ctx, header, req)

		case fuser.OpReadlink:
			// Readlink has no request
			resp, err = h.Readlink(ctx, header)

		case fuser.OpSymlink:
			req, _ := req.(*fuser.SymlinkRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Symlink(ctx, header, req)

		case fuser.OpMknod:
			req, _ := req.(*fuser.MknodRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Mknod(ctx, header, req)

		case fuser.OpMkdir:
			req, _ := req.(*fuser.MkdirRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Mkdir(ctx, header, req)

		case fuser.OpUnlink:
			req, _ := req.(*fuser.UnlinkRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Unlink(ctx, header, req)

		case fuser.OpRmdir:
			req, _ := req.(*fuser.RmdirRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Rmdir(ctx, header, req)

		case fuser.OpRename, fuser.OpRename2:
			req, _ := req.(*fuser.RenameRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Rename(ctx, header, req)

		case fuser.OpExchange:
			req, _ := req.(*fuser.ExchangeRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Exchange(ctx, header, req)

		case fuser.OpLink:
			req, _ := req.(*fuser.LinkRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Link(ctx, header, req)

		case fuser.OpOpen:
			req, _ := req.(*fuser.OpenRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Open(ctx, header, req)

		case fuser.OpRead:
			req, _ := req.(*fuser.ReadRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Read(ctx, header, req)

		case fuser.OpWrite:
			req, _ := req.(*fuser.WriteRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Write(ctx, header, req)

		case fuser.OpStatfs:
			// Statfs has no request
			resp, err = h.Statfs(ctx, header)

		case fuser.OpRelease:
			req, _ := req.(*fuser.ReleaseRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			h.Release(ctx, header, req)

		case fuser.OpFsync:
			req, _ := req.(*fuser.FsyncRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Fsync(ctx, header, req)

		case fuser.OpSetxattr:
			req, _ := req.(*fuser.SetxattrRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Setxattr(ctx, header, req)

		case fuser.OpGetxattr:
			req, _ := req.(*fuser.GetxattrRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Getxattr(ctx, header, req)

		case fuser.OpListxattr:
			req, _ := req.(*fuser.ListxattrRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Listxattr(ctx, header, req)

		case fuser.OpRemovexattr:
			req, _ := req.(*fuser.RemovexattrRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Removexattr(ctx, header, req)

		case fuser.OpFlush:
			req, _ := req.(*fuser.FlushRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Flush(ctx, header, req)

		case fuser.OpOpendir:
			req, _ := req.(*fuser.OpenRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Opendir(ctx, header, req)

		case fuser.OpReaddir:
			req, _ := req.(*fuser.ReadRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Readdir(ctx, header, req)

		case fuser.OpReaddirplus:
			req, _ := req.(*fuser.ReadRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Readdirplus(ctx, header, req)

		case fuser.OpReleasedir:
			req, _ := req.(*fuser.ReleaseRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			h.Releasedir(ctx, header, req)

		case fuser.OpFsyncDir:
			req, _ := req.(*fuser.FsyncRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Fsyncdir(ctx, header, req)

		case fuser.OpGetLock:
			req, _ := req.(*fuser.GetLockRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Getlk(ctx, header, req)

		case fuser.OpSetLock, fuser.OpSetLockWait:
			req, _ := req.(*fuser.SetLockRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Setlk(ctx, header, req)

		case fuser.OpAccess:
			req, _ := req.(*fuser.AccessRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Access(ctx, header, req)

		case fuser.OpCreate:
			req, _ := req.(*fuser.CreateRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Create(ctx, header, req)

		case fuser.OpBmap:
			req, _ := req.(*fuser.BmapRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Bmap(ctx, header, req)

		case fuser.OpIoctl:
			req, _ := req.(*fuser.IoctlRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Ioctl(ctx, header, req)

		case fuser.OpPoll:
			req, _ := req.(*fuser.PollRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Poll(ctx, header, req)

		case fuser.OpFallocate:
			req, _ := req.(*fuser.FallocateRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.Fallocate(ctx, header, req)

		case fuser.OpLseek:
			req, _ := req.(*fuser.LseekRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.Lseek(ctx, header, req)

		case fuser.OpCopyFileRange:
			req, _ := req.(*fuser.CopyFileRangeRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			resp, err = h.CopyFileRange(ctx, header, req)

		case fuser.OpSetVolName:
			req, _ := req.(*fuser.SetVolNameRequest)
			if req == nil {
				err = fmt.Errorf("missing request body for %s: %w", header.Op, fuser.ErrorInvalid)
				break
			}
			err = h.SetVolName(ctx, header, req)

		case fuser.OpGetXTimes:
			// GetXTimes has no request
			resp, err = h.GetXTimes(ctx, header)

		default:
			err = fmt.Errorf("unexpected opcode %q: %w", header.Op, fuser.ErrorUnimplemented)
		}

		return resp, err
	}
}

type chainMiddleware []Middleware

func (c chainMiddleware) HandleRequest(ctx context.Context, h *fuser.RequestHeader, req fuser.Request, invoker Invoker) (fuser.Response, error) {
	if len(c) == 0 {
		return invoker(ctx, h, req)
	}

	var (
		index        int
		chainInvoker Invoker
	)

	chainInvoker = func(ctx context.Context, h *fuser.RequestHeader, req fuser.Request) (fuser.Response, error) {
		mw := c[index]
		index++

		var next Invoker
		if index == len(c) {
			next = invoker
		} else {
			next = chainInvoker
		}

		return mw.HandleRequest(ctx, h, req, next)
	}
	return chainInvoker(ctx, h, req)
}
