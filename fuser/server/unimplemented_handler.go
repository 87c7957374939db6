package server

import (
	"context"

	"github.com/cberner/fuser-sub000/fuser"
)

// UnimplementedHandler implements Handler and returns ErrorUnimplemented for all requests.
type UnimplementedHandler struct{}

// Static type check test
var _ Handler = UnimplementedHandler{}

func (UnimplementedHandler) Init(context.Context, *fuser.KernelConfig) error {
	return nil
}

func (UnimplementedHandler) Destroy() {
	// no-op
}

func (UnimplementedHandler) Lookup(context.Context, *fuser.RequestHeader, *fuser.LookupRequest) (*fuser.EntryResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Forget(context.Context, *fuser.RequestHeader, *fuser.ForgetRequest) {
	// no-op
}

func (UnimplementedHandler) BatchForget(context.Context, *fuser.RequestHeader, *fuser.BatchForgetRequest) {
	// no-op
}

func (UnimplementedHandler) Getattr(context.Context, *fuser.RequestHeader, *fuser.GetattrRequest) (*fuser.AttrResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Setattr(context.Context, *fuser.RequestHeader, *fuser.SetattrRequest) (*fuser.AttrResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Readlink(context.Context, *fuser.RequestHeader) (*fuser.ReadlinkResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Symlink(context.Context, *fuser.RequestHeader, *fuser.SymlinkRequest) (*fuser.EntryResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Mknod(context.Context, *fuser.RequestHeader, *fuser.MknodRequest) (*fuser.EntryResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Mkdir(context.Context, *fuser.RequestHeader, *fuser.MkdirRequest) (*fuser.EntryResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Unlink(context.Context, *fuser.RequestHeader, *fuser.UnlinkRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Rmdir(context.Context, *fuser.RequestHeader, *fuser.RmdirRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Rename(context.Context, *fuser.RequestHeader, *fuser.RenameRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Exchange(context.Context, *fuser.RequestHeader, *fuser.ExchangeRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Link(context.Context, *fuser.RequestHeader, *fuser.LinkRequest) (*fuser.EntryResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Open(context.Context, *fuser.RequestHeader, *fuser.OpenRequest) (*fuser.OpenedResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Read(context.Context, *fuser.RequestHeader, *fuser.ReadRequest) (*fuser.ReadResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Write(context.Context, *fuser.RequestHeader, *fuser.WriteRequest) (*fuser.WriteResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Statfs(context.Context, *fuser.RequestHeader) (*fuser.StatfsResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Release(context.Context, *fuser.RequestHeader, *fuser.ReleaseRequest) {
	// no-op
}

func (UnimplementedHandler) Fsync(context.Context, *fuser.RequestHeader, *fuser.FsyncRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Setxattr(context.Context, *fuser.RequestHeader, *fuser.SetxattrRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Getxattr(context.Context, *fuser.RequestHeader, *fuser.GetxattrRequest) (*fuser.XattrResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Listxattr(context.Context, *fuser.RequestHeader, *fuser.ListxattrRequest) (*fuser.XattrResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Removexattr(context.Context, *fuser.RequestHeader, *fuser.RemovexattrRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Flush(context.Context, *fuser.RequestHeader, *fuser.FlushRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Opendir(context.Context, *fuser.RequestHeader, *fuser.OpenRequest) (*fuser.OpenedResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Readdir(context.Context, *fuser.RequestHeader, *fuser.ReadRequest) (*fuser.ReaddirResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Readdirplus(context.Context, *fuser.RequestHeader, *fuser.ReadRequest) (*fuser.ReaddirplusResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Releasedir(context.Context, *fuser.RequestHeader, *fuser.ReleaseRequest) {
	// no-op
}

func (UnimplementedHandler) Fsyncdir(context.Context, *fuser.RequestHeader, *fuser.FsyncRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Getlk(context.Context, *fuser.RequestHeader, *fuser.GetLockRequest) (*fuser.LockResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Setlk(context.Context, *fuser.RequestHeader, *fuser.SetLockRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Access(context.Context, *fuser.RequestHeader, *fuser.AccessRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Create(context.Context, *fuser.RequestHeader, *fuser.CreateRequest) (*fuser.CreateResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Bmap(context.Context, *fuser.RequestHeader, *fuser.BmapRequest) (*fuser.BmapResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Ioctl(context.Context, *fuser.RequestHeader, *fuser.IoctlRequest) (*fuser.IoctlResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Poll(context.Context, *fuser.RequestHeader, *fuser.PollRequest) (*fuser.PollResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Fallocate(context.Context, *fuser.RequestHeader, *fuser.FallocateRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) Lseek(context.Context, *fuser.RequestHeader, *fuser.LseekRequest) (*fuser.LseekResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) CopyFileRange(context.Context, *fuser.RequestHeader, *fuser.CopyFileRangeRequest) (*fuser.WriteResponse, error) {
	return nil, fuser.ErrorUnimplemented
}

func (UnimplementedHandler) SetVolName(context.Context, *fuser.RequestHeader, *fuser.SetVolNameRequest) error {
	return fuser.ErrorUnimplemented
}

func (UnimplementedHandler) GetXTimes(context.Context, *fuser.RequestHeader) (*fuser.XTimesResponse, error) {
	return nil, fuser.ErrorUnimplemented
}
