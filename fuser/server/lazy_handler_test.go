package server

import (
	"context"
	"testing"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/stretchr/testify/require"
)

func TestLazyHandler(t *testing.T) {
	ctx := context.Background()
	lh := &LazyHandler{}
	mw := lazyMiddleware{lh}

	invoker := handlerInvoker(lh)
	hdr := &fuser.RequestHeader{Op: fuser.OpLookup}
	req := &fuser.LookupRequest{Name: "foo"}

	// Requests before a handler is set answer ENOENT.
	_, err := mw.HandleRequest(ctx, hdr, req, invoker)
	require.ErrorIs(t, err, fuser.ErrorNotExist)

	inner := &testHandler{
		lookup: func(context.Context, *fuser.RequestHeader, *fuser.LookupRequest) (*fuser.EntryResponse, error) {
			return &fuser.EntryResponse{Entry: fuser.Entry{Node: 2}}, nil
		},
	}
	require.NoError(t, lh.SetHandler(ctx, inner))

	resp, err := mw.HandleRequest(ctx, hdr, req, invoker)
	require.NoError(t, err)
	require.Equal(t, fuser.Node(2), resp.(*fuser.EntryResponse).Entry.Node)

	// Destroying tears down the inner handler and makes the mount answer EIO.
	lh.Destroy()
	require.Equal(t, int32(1), inner.destroys.Load())

	_, err = mw.HandleRequest(ctx, hdr, req, invoker)
	require.ErrorIs(t, err, fuser.ErrorIO)
	require.Error(t, lh.SetHandler(ctx, inner))
}

func TestLazyHandler_LateSetInitializes(t *testing.T) {
	ctx := context.Background()
	lh := &LazyHandler{}

	// The handshake happened before the real handler arrived; SetHandler
	// replays init immediately.
	cfg := fuser.NewKernelConfig(&fuser.InitRequest{
		LatestVersion: fuser.Version{Major: 7, Minor: 31},
	}, 0)
	require.NoError(t, lh.Init(ctx, cfg))

	inner := &testHandler{}
	require.NoError(t, lh.SetHandler(ctx, inner))
	require.Equal(t, int32(1), inner.inits.Load())
}
