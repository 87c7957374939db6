// Package server implements the session side of the protocol: the handshake
// state machine, the request dispatcher, the worker pool that serves
// requests concurrently, and the notifier for unsolicited kernel messages.
package server

import (
	"context"

	"github.com/cberner/fuser-sub000/fuser"
)

// Handler is the filesystem callback interface: one method per operation,
// taking the decoded header fields plus the operation's typed arguments.
//
// Handlers are invoked concurrently from multiple workers with no additional
// locking; implementations must serialize their own internal mutable state.
//
// Init and Destroy bookend the session. Forget, BatchForget, Release and
// Releasedir are fire-and-forget: they return no value and any failure stays
// inside the handler.
//
// Embed UnimplementedHandler to only implement the methods you care about.
type Handler interface {
	// Init is called during the handshake with the mutable capability
	// negotiation object. Returning an error rejects the handshake and fails
	// session startup.
	Init(ctx context.Context, config *fuser.KernelConfig) error

	// Destroy is called exactly once when the session ends, whether from an
	// explicit destroy operation or from loop termination.
	Destroy()

	Lookup(context.Context, *fuser.RequestHeader, *fuser.LookupRequest) (*fuser.EntryResponse, error)
	Forget(context.Context, *fuser.RequestHeader, *fuser.ForgetRequest)
	BatchForget(context.Context, *fuser.RequestHeader, *fuser.BatchForgetRequest)
	Getattr(context.Context, *fuser.RequestHeader, *fuser.GetattrRequest) (*fuser.AttrResponse, error)
	Setattr(context.Context, *fuser.RequestHeader, *fuser.SetattrRequest) (*fuser.AttrResponse, error)
	Readlink(context.Context, *fuser.RequestHeader) (*fuser.ReadlinkResponse, error)
	Symlink(context.Context, *fuser.RequestHeader, *fuser.SymlinkRequest) (*fuser.EntryResponse, error)
	Mknod(context.Context, *fuser.RequestHeader, *fuser.MknodRequest) (*fuser.EntryResponse, error)
	Mkdir(context.Context, *fuser.RequestHeader, *fuser.MkdirRequest) (*fuser.EntryResponse, error)
	Unlink(context.Context, *fuser.RequestHeader, *fuser.UnlinkRequest) error
	Rmdir(context.Context, *fuser.RequestHeader, *fuser.RmdirRequest) error
	Rename(context.Context, *fuser.RequestHeader, *fuser.RenameRequest) error
	Exchange(context.Context, *fuser.RequestHeader, *fuser.ExchangeRequest) error
	Link(context.Context, *fuser.RequestHeader, *fuser.LinkRequest) (*fuser.EntryResponse, error)
	Open(context.Context, *fuser.RequestHeader, *fuser.OpenRequest) (*fuser.OpenedResponse, error)
	Read(context.Context, *fuser.RequestHeader, *fuser.ReadRequest) (*fuser.ReadResponse, error)
	Write(context.Context, *fuser.RequestHeader, *fuser.WriteRequest) (*fuser.WriteResponse, error)
	Statfs(context.Context, *fuser.RequestHeader) (*fuser.StatfsResponse, error)
	Release(context.Context, *fuser.RequestHeader, *fuser.ReleaseRequest)
	Fsync(context.Context, *fuser.RequestHeader, *fuser.FsyncRequest) error
	Setxattr(context.Context, *fuser.RequestHeader, *fuser.SetxattrRequest) error
	Getxattr(context.Context, *fuser.RequestHeader, *fuser.GetxattrRequest) (*fuser.XattrResponse, error)
	Listxattr(context.Context, *fuser.RequestHeader, *fuser.ListxattrRequest) (*fuser.XattrResponse, error)
	Removexattr(context.Context, *fuser.RequestHeader, *fuser.RemovexattrRequest) error
	Flush(context.Context, *fuser.RequestHeader, *fuser.FlushRequest) error
	Opendir(context.Context, *fuser.RequestHeader, *fuser.OpenRequest) (*fuser.OpenedResponse, error)
	Readdir(context.Context, *fuser.RequestHeader, *fuser.ReadRequest) (*fuser.ReaddirResponse, error)
	Readdirplus(context.Context, *fuser.RequestHeader, *fuser.ReadRequest) (*fuser.ReaddirplusResponse, error)
	Releasedir(context.Context, *fuser.RequestHeader, *fuser.ReleaseRequest)
	Fsyncdir(context.Context, *fuser.RequestHeader, *fuser.FsyncRequest) error
	Getlk(context.Context, *fuser.RequestHeader, *fuser.GetLockRequest) (*fuser.LockResponse, error)
	Setlk(context.Context, *fuser.RequestHeader, *fuser.SetLockRequest) error
	Access(context.Context, *fuser.RequestHeader, *fuser.AccessRequest) error
	Create(context.Context, *fuser.RequestHeader, *fuser.CreateRequest) (*fuser.CreateResponse, error)
	Bmap(context.Context, *fuser.RequestHeader, *fuser.BmapRequest) (*fuser.BmapResponse, error)
	Ioctl(context.Context, *fuser.RequestHeader, *fuser.IoctlRequest) (*fuser.IoctlResponse, error)
	Poll(context.Context, *fuser.RequestHeader, *fuser.PollRequest) (*fuser.PollResponse, error)
	Fallocate(context.Context, *fuser.RequestHeader, *fuser.FallocateRequest) error
	Lseek(context.Context, *fuser.RequestHeader, *fuser.LseekRequest) (*fuser.LseekResponse, error)
	CopyFileRange(context.Context, *fuser.RequestHeader, *fuser.CopyFileRangeRequest) (*fuser.WriteResponse, error)
	SetVolName(context.Context, *fuser.RequestHeader, *fuser.SetVolNameRequest) error
	GetXTimes(context.Context, *fuser.RequestHeader) (*fuser.XTimesResponse, error)
}
