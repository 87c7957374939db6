package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/cberner/fuser-sub000/fuser"
)

// LazyHandler is a Handler which allows to defer setting of the real Handler
// implementation. The zero value is ready for use.
type LazyHandler struct {
	mut             sync.RWMutex
	inner           Handler
	innerMiddleware Middleware
	config          *fuser.KernelConfig
	initialized     bool
	destroyed       bool
}

var (
	_ Handler = (*LazyHandler)(nil)
)

// SetHandler configures LazyHandler to forward requests to the specified h.
// SetHandler may not be called after LazyHandler has been destroyed.
//
// h.Init will immediately be called if the lazy handler has already been
// initialized.
func (lh *LazyHandler) SetHandler(ctx context.Context, h Handler) error {
	lh.mut.Lock()
	defer lh.mut.Unlock()

	if lh.destroyed {
		return fmt.Errorf("LazyHandler destroyed")
	}

	lh.inner = h
	if lh.initialized && lh.inner != nil {
		// We were previously initialized. Immediately initialize h.
		return lh.inner.Init(ctx, lh.config)
	}
	return nil
}

type lazyMiddleware struct{ *LazyHandler }

func (lm lazyMiddleware) HandleRequest(ctx context.Context, h *fuser.RequestHeader, req fuser.Request, invoker Invoker) (fuser.Response, error) {
	lm.mut.RLock()
	defer lm.mut.RUnlock()

	switch {
	case lm.destroyed:
		return nil, fuser.ErrorIO
	case lm.inner == nil:
		return nil, fuser.ErrorNotExist
	}

	if lm.innerMiddleware != nil {
		return lm.innerMiddleware.HandleRequest(ctx, h, req, invoker)
	}
	return invoker(ctx, h, req)
}

// Init implements Handler. Init will forward the Init to the inner Handler
// whenever it is set.
func (lh *LazyHandler) Init(ctx context.Context, config *fuser.KernelConfig) error {
	lh.mut.Lock()
	defer lh.mut.Unlock()

	lh.initialized = true
	lh.config = config

	if lh.inner != nil {
		// We already have an inner handler; we can call its init immediately.
		return lh.inner.Init(ctx, config)
	}
	return nil
}

// Destroy implements Handler. It tears down the inner handler, if set, and
// marks the LazyHandler as unusable.
func (lh *LazyHandler) Destroy() {
	lh.mut.Lock()
	defer lh.mut.Unlock()

	lh.destroyed = true

	if lh.inner != nil {
		lh.inner.Destroy()
	}
	lh.inner = nil
	lh.innerMiddleware = nil
}

// NOTE: our lazyMiddleware holds a read lock throughout the requests below.
// The requests below also are only called if lh.inner is set, otherwise the
// middleware we generate returns an early error.

func (lh *LazyHandler) Lookup(ctx context.Context, h *fuser.RequestHeader, req *fuser.LookupRequest) (*fuser.EntryResponse, error) {
	return lh.inner.Lookup(ctx, h, req)
}

func (lh *LazyHandler) Forget(ctx context.Context, h *fuser.RequestHeader, req *fuser.ForgetRequest) {
	lh.inner.Forget(ctx, h, req)
}

func (lh *LazyHandler) BatchForget(ctx context.Context, h *fuser.RequestHeader, req *fuser.BatchForgetRequest) {
	lh.inner.BatchForget(ctx, h, req)
}

func (lh *LazyHandler) Getattr(ctx context.Context, h *fuser.RequestHeader, req *fuser.GetattrRequest) (*fuser.AttrResponse, error) {
	return lh.inner.Getattr(ctx, h, req)
}

func (lh *LazyHandler) Setattr(ctx context.Context, h *fuser.RequestHeader, req *fuser.SetattrRequest) (*fuser.AttrResponse, error) {
	return lh.inner.Setattr(ctx, h, req)
}

func (lh *LazyHandler) Readlink(ctx context.Context, h *fuser.RequestHeader) (*fuser.ReadlinkResponse, error) {
	return lh.inner.Readlink(ctx, h)
}

func (lh *LazyHandler) Symlink(ctx context.Context, h *fuser.RequestHeader, req *fuser.SymlinkRequest) (*fuser.EntryResponse, error) {
	return lh.inner.Symlink(ctx, h, req)
}

func (lh *LazyHandler) Mknod(ctx context.Context, h *fuser.RequestHeader, req *fuser.MknodRequest) (*fuser.EntryResponse, error) {
	return lh.inner.Mknod(ctx, h, req)
}

func (lh *LazyHandler) Mkdir(ctx context.Context, h *fuser.RequestHeader, req *fuser.MkdirRequest) (*fuser.EntryResponse, error) {
	return lh.inner.Mkdir(ctx, h, req)
}

func (lh *LazyHandler) Unlink(ctx context.Context, h *fuser.RequestHeader, req *fuser.UnlinkRequest) error {
	return lh.inner.Unlink(ctx, h, req)
}

func (lh *LazyHandler) Rmdir(ctx context.Context, h *fuser.RequestHeader, req *fuser.RmdirRequest) error {
	return lh.inner.Rmdir(ctx, h, req)
}

func (lh *LazyHandler) Rename(ctx context.Context, h *fuser.RequestHeader, req *fuser.RenameRequest) error {
	return lh.inner.Rename(ctx, h, req)
}

func (lh *LazyHandler) Exchange(ctx context.Context, h *fuser.RequestHeader, req *fuser.ExchangeRequest) error {
	return lh.inner.Exchange(ctx, h, req)
}

func (lh *LazyHandler) Link(ctx context.Context, h *fuser.RequestHeader, req *fuser.LinkRequest) (*fuser.EntryResponse, error) {
	return lh.inner.Link(ctx, h, req)
}

func (lh *LazyHandler) Open(ctx context.Context, h *fuser.RequestHeader, req *fuser.OpenRequest) (*fuser.OpenedResponse, error) {
	return lh.inner.Open(ctx, h, req)
}

func (lh *LazyHandler) Read(ctx context.Context, h *fuser.RequestHeader, req *fuser.ReadRequest) (*fuser.ReadResponse, error) {
	return lh.inner.Read(ctx, h, req)
}

func (lh *LazyHandler) Write(ctx context.Context, h *fuser.RequestHeader, req *fuser.WriteRequest) (*fuser.WriteResponse, error) {
	return lh.inner.Write(ctx, h, req)
}

func (lh *LazyHandler) Statfs(ctx context.Context, h *fuser.RequestHeader) (*fuser.StatfsResponse, error) {
	return lh.inner.Statfs(ctx, h)
}

func (lh *LazyHandler) Release(ctx context.Context, h *fuser.RequestHeader, req *fuser.ReleaseRequest) {
	lh.inner.Release(ctx, h, req)
}

func (lh *LazyHandler) Fsync(ctx context.Context, h *fuser.RequestHeader, req *fuser.FsyncRequest) error {
	return lh.inner.Fsync(ctx, h, req)
}

func (lh *LazyHandler) Setxattr(ctx context.Context, h *fuser.RequestHeader, req *fuser.SetxattrRequest) error {
	return lh.inner.Setxattr(ctx, h, req)
}

func (lh *LazyHandler) Getxattr(ctx context.Context, h *fuser.RequestHeader, req *fuser.GetxattrRequest) (*fuser.XattrResponse, error) {
	return lh.inner.Getxattr(ctx, h, req)
}

func (lh *LazyHandler) Listxattr(ctx context.Context, h *fuser.RequestHeader, req *fuser.ListxattrRequest) (*fuser.XattrResponse, error) {
	return lh.inner.Listxattr(ctx, h, req)
}

func (lh *LazyHandler) Removexattr(ctx context.Context, h *fuser.RequestHeader, req *fuser.RemovexattrRequest) error {
	return lh.inner.Removexattr(ctx, h, req)
}

func (lh *LazyHandler) Flush(ctx context.Context, h *fuser.RequestHeader, req *fuser.FlushRequest) error {
	return lh.inner.Flush(ctx, h, req)
}

func (lh *LazyHandler) Opendir(ctx context.Context, h *fuser.RequestHeader, req *fuser.OpenRequest) (*fuser.OpenedResponse, error) {
	return lh.inner.Opendir(ctx, h, req)
}

func (lh *LazyHandler) Readdir(ctx context.Context, h *fuser.RequestHeader, req *fuser.ReadRequest) (*fuser.ReaddirResponse, error) {
	return lh.inner.Readdir(ctx, h, req)
}

func (lh *LazyHandler) Readdirplus(ctx context.Context, h *fuser.RequestHeader, req *fuser.ReadRequest) (*fuser.ReaddirplusResponse, error) {
	return lh.inner.Readdirplus(ctx, h, req)
}

func (lh *LazyHandler) Releasedir(ctx context.Context, h *fuser.RequestHeader, req *fuser.ReleaseRequest) {
	lh.inner.Releasedir(ctx, h, req)
}

func (lh *LazyHandler) Fsyncdir(ctx context.Context, h *fuser.RequestHeader, req *fuser.FsyncRequest) error {
	return lh.inner.Fsyncdir(ctx, h, req)
}

func (lh *LazyHandler) Getlk(ctx context.Context, h *fuser.RequestHeader, req *fuser.GetLockRequest) (*fuser.LockResponse, error) {
	return lh.inner.Getlk(ctx, h, req)
}

func (lh *LazyHandler) Setlk(ctx context.Context, h *fuser.RequestHeader, req *fuser.SetLockRequest) error {
	return lh.inner.Setlk(ctx, h, req)
}

func (lh *LazyHandler) Access(ctx context.Context, h *fuser.RequestHeader, req *fuser.AccessRequest) error {
	return lh.inner.Access(ctx, h, req)
}

func (lh *LazyHandler) Create(ctx context.Context, h *fuser.RequestHeader, req *fuser.CreateRequest) (*fuser.CreateResponse, error) {
	return lh.inner.Create(ctx, h, req)
}

func (lh *LazyHandler) Bmap(ctx context.Context, h *fuser.RequestHeader, req *fuser.BmapRequest) (*fuser.BmapResponse, error) {
	return lh.inner.Bmap(ctx, h, req)
}

func (lh *LazyHandler) Ioctl(ctx context.Context, h *fuser.RequestHeader, req *fuser.IoctlRequest) (*fuser.IoctlResponse, error) {
	return lh.inner.Ioctl(ctx, h, req)
}

func (lh *LazyHandler) Poll(ctx context.Context, h *fuser.RequestHeader, req *fuser.PollRequest) (*fuser.PollResponse, error) {
	return lh.inner.Poll(ctx, h, req)
}

func (lh *LazyHandler) Fallocate(ctx context.Context, h *fuser.RequestHeader, req *fuser.FallocateRequest) error {
	return lh.inner.Fallocate(ctx, h, req)
}

func (lh *LazyHandler) Lseek(ctx context.Context, h *fuser.RequestHeader, req *fuser.LseekRequest) (*fuser.LseekResponse, error) {
	return lh.inner.Lseek(ctx, h, req)
}

func (lh *LazyHandler) CopyFileRange(ctx context.Context, h *fuser.RequestHeader, req *fuser.CopyFileRangeRequest) (*fuser.WriteResponse, error) {
	return lh.inner.CopyFileRange(ctx, h, req)
}

func (lh *LazyHandler) SetVolName(ctx context.Context, h *fuser.RequestHeader, req *fuser.SetVolNameRequest) error {
	return lh.inner.SetVolName(ctx, h, req)
}

func (lh *LazyHandler) GetXTimes(ctx context.Context, h *fuser.RequestHeader) (*fuser.XTimesResponse, error) {
	return lh.inner.GetXTimes(ctx, h)
}
