package server

import (
	"context"
	"testing"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/stretchr/testify/require"
)

func TestChainMiddleware(t *testing.T) {
	var a, b, c, d int
	var called bool

	var mw = []Middleware{
		FuncMiddleware(func(ctx context.Context, h *fuser.RequestHeader, req fuser.Request, i Invoker) (fuser.Response, error) {
			a = 10
			return i(ctx, h, req)
		}),
		FuncMiddleware(func(ctx context.Context, h *fuser.RequestHeader, req fuser.Request, i Invoker) (fuser.Response, error) {
			b = 20
			return i(ctx, h, req)
		}),
		FuncMiddleware(func(ctx context.Context, h *fuser.RequestHeader, req fuser.Request, i Invoker) (fuser.Response, error) {
			c = 30
			return i(ctx, h, req)
		}),
		FuncMiddleware(func(ctx context.Context, h *fuser.RequestHeader, req fuser.Request, i Invoker) (fuser.Response, error) {
			d = 40
			return i(ctx, h, req)
		}),
	}

	invoker := func(context.Context, *fuser.RequestHeader, fuser.Request) (fuser.Response, error) {
		called = true
		return nil, nil
	}
	chainMiddleware(mw).HandleRequest(context.Background(), nil, nil, invoker)

	require.Equal(t, 10, a)
	require.Equal(t, 20, b)
	require.Equal(t, 30, c)
	require.Equal(t, 40, d)
	require.True(t, called)
}

func TestChainMiddleware_Empty(t *testing.T) {
	var called bool

	invoker := func(context.Context, *fuser.RequestHeader, fuser.Request) (fuser.Response, error) {
		called = true
		return nil, nil
	}

	chainMiddleware(nil).HandleRequest(context.Background(), nil, nil, invoker)
	require.True(t, called)
}

func TestHandlerInvoker_MissingBody(t *testing.T) {
	invoker := handlerInvoker(UnimplementedHandler{})

	hdr := &fuser.RequestHeader{Op: fuser.OpLookup}
	resp, err := invoker(context.Background(), hdr, nil)
	require.Nil(t, resp)
	require.ErrorIs(t, err, fuser.ErrorInvalid)
}

func TestHandlerInvoker_VoidOps(t *testing.T) {
	invoker := handlerInvoker(UnimplementedHandler{})

	// Release carries a reply on the wire but no payload; the invoker reports
	// success so the dispatcher can acknowledge it.
	hdr := &fuser.RequestHeader{Op: fuser.OpRelease}
	resp, err := invoker(context.Background(), hdr, &fuser.ReleaseRequest{})
	require.Nil(t, resp)
	require.NoError(t, err)

	hdr = &fuser.RequestHeader{Op: fuser.OpForget}
	resp, err = invoker(context.Background(), hdr, &fuser.ForgetRequest{NumLookups: 1})
	require.Nil(t, resp)
	require.NoError(t, err)
}
