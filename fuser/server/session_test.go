package server

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/cberner/fuser-sub000/fuser/fuse"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// fakeChannel is an in-memory fuse.Channel. Tests push request messages (or
// read errors) into it and collect the replies it was asked to write.
type fakeChannel struct {
	reads   chan readResult
	replies chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mut      sync.Mutex
	writeErr error
}

type readResult struct {
	data []byte
	err  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		reads:   make(chan readResult, 16),
		replies: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (ch *fakeChannel) push(msg []byte)   { ch.reads <- readResult{data: msg} }
func (ch *fakeChannel) pushErr(err error) { ch.reads <- readResult{err: err} }

func (ch *fakeChannel) setWriteErr(err error) {
	ch.mut.Lock()
	defer ch.mut.Unlock()
	ch.writeErr = err
}

func (ch *fakeChannel) Read(p []byte) (int, error) {
	select {
	case r := <-ch.reads:
		if r.err != nil {
			return 0, r.err
		}
		return copy(p, r.data), nil
	case <-ch.done:
		return 0, unix.EBADF
	}
}

func (ch *fakeChannel) Writev(bufs ...[]byte) (int, error) {
	ch.mut.Lock()
	werr := ch.writeErr
	ch.mut.Unlock()
	if werr != nil {
		return 0, werr
	}

	var msg []byte
	for _, b := range bufs {
		msg = append(msg, b...)
	}
	ch.replies <- msg
	return len(msg), nil
}

// Clone returns a view sharing the device state; closing the clone does not
// tear down the parent.
func (ch *fakeChannel) Clone() (fuse.Channel, error) {
	return &fakeChannelClone{ch}, nil
}

func (ch *fakeChannel) Close() error {
	ch.closeOnce.Do(func() { close(ch.done) })
	return nil
}

type fakeChannelClone struct{ *fakeChannel }

func (c *fakeChannelClone) Close() error { return nil }

// awaitReply returns the next reply written to ch, failing the test after a
// timeout.
func awaitReply(t *testing.T, ch *fakeChannel) []byte {
	t.Helper()
	select {
	case msg := <-ch.replies:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a reply")
		return nil
	}
}

// parseReply splits a written reply into its header fields and payload.
func parseReply(t *testing.T, msg []byte) (code int32, unique uint64, payload []byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(msg), fuse.OutHeaderSize)
	require.Equal(t, uint32(len(msg)), binary.NativeEndian.Uint32(msg[0:4]))
	code = int32(binary.NativeEndian.Uint32(msg[4:8]))
	unique = binary.NativeEndian.Uint64(msg[8:16])
	payload = msg[fuse.OutHeaderSize:]
	return code, unique, payload
}

// rawRequest assembles a wire request message.
func rawRequest(op fuser.Op, unique uint64, node fuser.Node, body []byte) []byte {
	buf := make([]byte, 0, fuse.InHeaderSize+len(body))
	buf = binary.NativeEndian.AppendUint32(buf, uint32(fuse.InHeaderSize+len(body)))
	buf = binary.NativeEndian.AppendUint32(buf, uint32(op))
	buf = binary.NativeEndian.AppendUint64(buf, unique)
	buf = binary.NativeEndian.AppendUint64(buf, uint64(node))
	buf = binary.NativeEndian.AppendUint32(buf, 0) // uid
	buf = binary.NativeEndian.AppendUint32(buf, 0) // gid
	buf = binary.NativeEndian.AppendUint32(buf, 0) // pid
	buf = binary.NativeEndian.AppendUint32(buf, 0) // padding
	return append(buf, body...)
}

func initRequest(unique uint64, major, minor uint32) []byte {
	var body []byte
	body = binary.NativeEndian.AppendUint32(body, major)
	body = binary.NativeEndian.AppendUint32(body, minor)
	body = binary.NativeEndian.AppendUint32(body, 128*1024) // max_readahead
	body = binary.NativeEndian.AppendUint32(body, 0xffff)   // flags
	return rawRequest(fuser.OpInit, unique, fuser.RootNode, body)
}

// testHandler records lifecycle calls and lets individual tests override
// per-op behavior.
type testHandler struct {
	UnimplementedHandler

	inits    atomic.Int32
	destroys atomic.Int32
	forgets  chan struct{}

	initErr error
	lookup  func(ctx context.Context, hdr *fuser.RequestHeader, req *fuser.LookupRequest) (*fuser.EntryResponse, error)
	ioctl   func(ctx context.Context, hdr *fuser.RequestHeader, req *fuser.IoctlRequest) (*fuser.IoctlResponse, error)
	forget  func(ctx context.Context, hdr *fuser.RequestHeader, req *fuser.ForgetRequest)
}

func (h *testHandler) Init(context.Context, *fuser.KernelConfig) error {
	h.inits.Inc()
	return h.initErr
}

func (h *testHandler) Destroy() { h.destroys.Inc() }

func (h *testHandler) Forget(ctx context.Context, hdr *fuser.RequestHeader, req *fuser.ForgetRequest) {
	if h.forgets != nil {
		h.forgets <- struct{}{}
	}
	if h.forget != nil {
		h.forget(ctx, hdr, req)
	}
}

func (h *testHandler) Ioctl(ctx context.Context, hdr *fuser.RequestHeader, req *fuser.IoctlRequest) (*fuser.IoctlResponse, error) {
	if h.ioctl != nil {
		return h.ioctl(ctx, hdr, req)
	}
	return nil, fuser.ErrorUnimplemented
}

func (h *testHandler) Lookup(ctx context.Context, hdr *fuser.RequestHeader, req *fuser.LookupRequest) (*fuser.EntryResponse, error) {
	if h.lookup != nil {
		return h.lookup(ctx, hdr, req)
	}
	return nil, fuser.ErrorNotExist
}

func newTestSession(t *testing.T, h Handler, o SessionOptions) (*Session, *fakeChannel) {
	t.Helper()
	ch := newFakeChannel()
	o.Handler = h
	o.Layout = fuse.LinuxLayout
	s, err := NewSession(nil, ch, o)
	require.NoError(t, err)
	return s, ch
}

func serveSession(t *testing.T, s *Session) chan error {
	t.Helper()
	out := make(chan error, 1)
	go func() { out <- s.Serve(context.Background()) }()
	return out
}

func awaitServe(t *testing.T, served chan error) error {
	t.Helper()
	select {
	case err := <-served:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session to stop")
		return nil
	}
}

func TestSession_Handshake(t *testing.T) {
	h := &testHandler{}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	ch.push(initRequest(1, 7, 31))

	code, unique, payload := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)
	require.Equal(t, uint64(1), unique)
	require.Equal(t, uint32(7), binary.NativeEndian.Uint32(payload[0:4]))
	require.Equal(t, uint32(31), binary.NativeEndian.Uint32(payload[4:8]))

	require.Eventually(t, func() bool { return s.State() == SessionReady }, time.Second, time.Millisecond)
	require.Equal(t, fuser.Version{Major: 7, Minor: 31}, s.Version())
	require.Equal(t, int32(1), h.inits.Load())

	ch.push(rawRequest(fuser.OpDestroy, 2, fuser.RootNode, nil))
	code, unique, _ = parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)
	require.Equal(t, uint64(2), unique)

	require.NoError(t, awaitServe(t, served))
	require.Equal(t, SessionDestroyed, s.State())
	require.Equal(t, int32(1), h.destroys.Load())

	// Closing after the fact doesn't run the teardown hook again.
	require.NoError(t, s.Close())
	require.Equal(t, int32(1), h.destroys.Load())
}

func TestSession_HandshakeDowngrade(t *testing.T) {
	h := &testHandler{}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	// A kernel from the future: the session answers with the newest version
	// it speaks and waits for another init.
	ch.push(initRequest(1, 8, 1))

	code, _, payload := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)
	require.Equal(t, uint32(7), binary.NativeEndian.Uint32(payload[0:4]))
	require.Equal(t, fuse.LinuxLayout.LatestMinor, binary.NativeEndian.Uint32(payload[4:8]))
	require.Equal(t, SessionHandshaking, s.State())
	require.Equal(t, int32(0), h.inits.Load())

	// The retried init completes the handshake.
	ch.push(initRequest(2, 7, 40))
	code, _, _ = parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)
	require.Eventually(t, func() bool { return s.State() == SessionReady }, time.Second, time.Millisecond)

	s.Close()
	require.NoError(t, awaitServe(t, served))
}

func TestSession_HandshakeKernelTooOld(t *testing.T) {
	h := &testHandler{}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	ch.push(initRequest(1, 7, 5))

	code, _, payload := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x47), code) // EPROTO
	require.Empty(t, payload)

	err := awaitServe(t, served)
	require.ErrorIs(t, err, fuser.ErrorProtocol)
	require.Equal(t, int32(1), h.destroys.Load())
}

func TestSession_TrafficBeforeHandshake(t *testing.T) {
	h := &testHandler{}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	// Only init may arrive before the handshake completes; anything else is
	// answered EIO and kills the session.
	ch.push(rawRequest(fuser.OpStatfs, 1, fuser.RootNode, nil))
	code, unique, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x05), code)
	require.Equal(t, uint64(1), unique)

	err := awaitServe(t, served)
	require.ErrorIs(t, err, fuser.ErrorProtocol)
	require.NotEqual(t, SessionReady, s.State())
	require.Equal(t, int32(1), h.destroys.Load())
}

func TestSession_TransientReadErrorsRetried(t *testing.T) {
	h := &testHandler{}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	ch.pushErr(unix.EINTR)
	ch.pushErr(unix.EAGAIN)
	ch.pushErr(unix.ENOENT)
	ch.push(initRequest(1, 7, 31))

	code, _, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)

	// Unmount winds the session down without error.
	ch.pushErr(unix.ENODEV)
	require.NoError(t, awaitServe(t, served))
	require.Equal(t, int32(1), h.destroys.Load())
}

func TestSession_CorruptRequestFatal(t *testing.T) {
	h := &testHandler{}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	// Declared length runs past the message; framing can't be trusted.
	msg := rawRequest(fuser.OpStatfs, 1, fuser.RootNode, nil)
	binary.NativeEndian.PutUint32(msg[0:4], uint32(len(msg)+100))
	ch.push(msg)

	err := awaitServe(t, served)
	require.Error(t, err)
	var sre *fuse.ShortReadError
	require.ErrorAs(t, err, &sre)
	require.Equal(t, int32(1), h.destroys.Load())
}

func TestSession_HandlerPanicAnswersEIO(t *testing.T) {
	h := &testHandler{
		lookup: func(context.Context, *fuser.RequestHeader, *fuser.LookupRequest) (*fuser.EntryResponse, error) {
			panic("lookup exploded")
		},
	}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	ch.push(initRequest(1, 7, 31))
	code, _, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)

	ch.push(rawRequest(fuser.OpLookup, 2, fuser.RootNode, []byte("foo\x00")))
	code, unique, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x05), code)
	require.Equal(t, uint64(2), unique)

	// The panic doesn't take the session down.
	ch.push(rawRequest(fuser.OpStatfs, 3, fuser.RootNode, nil))
	code, unique, _ = parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x26), code) // ENOSYS from UnimplementedHandler
	require.Equal(t, uint64(3), unique)

	s.Close()
	require.NoError(t, awaitServe(t, served))
}

func TestSession_HandlerErrorMapped(t *testing.T) {
	h := &testHandler{}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	ch.push(initRequest(1, 7, 31))
	code, _, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)

	ch.push(rawRequest(fuser.OpLookup, 2, fuser.RootNode, []byte("missing\x00")))
	code, _, payload := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x02), code) // ENOENT
	require.Empty(t, payload)

	s.Close()
	require.NoError(t, awaitServe(t, served))
}

func TestSession_UnrestrictedIoctlAnswersENOSYS(t *testing.T) {
	var calls atomic.Int32
	h := &testHandler{
		ioctl: func(context.Context, *fuser.RequestHeader, *fuser.IoctlRequest) (*fuser.IoctlResponse, error) {
			calls.Inc()
			return &fuser.IoctlResponse{Result: 0}, nil
		},
	}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	ch.push(initRequest(1, 7, 31))
	code, _, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)

	ioctlBody := func(flags fuser.DeviceControlFlags) []byte {
		var body []byte
		body = binary.NativeEndian.AppendUint64(body, 9) // fh
		body = binary.NativeEndian.AppendUint32(body, uint32(flags))
		body = binary.NativeEndian.AppendUint32(body, 0x1234) // cmd
		body = binary.NativeEndian.AppendUint64(body, 0)      // arg
		body = binary.NativeEndian.AppendUint32(body, 0)      // in_size
		body = binary.NativeEndian.AppendUint32(body, 0)      // out_size
		return body
	}

	// Unrestricted ioctls never reach the handler.
	ch.push(rawRequest(fuser.OpIoctl, 2, fuser.RootNode, ioctlBody(fuser.DeviceControlUnrestricted)))
	code, unique, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x26), code) // ENOSYS
	require.Equal(t, uint64(2), unique)
	require.Equal(t, int32(0), calls.Load())

	// A restricted ioctl still does.
	ch.push(rawRequest(fuser.OpIoctl, 3, fuser.RootNode, ioctlBody(0)))
	code, unique, _ = parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)
	require.Equal(t, uint64(3), unique)
	require.Equal(t, int32(1), calls.Load())

	s.Close()
	require.NoError(t, awaitServe(t, served))
}

func TestSession_ForgetPanicContained(t *testing.T) {
	h := &testHandler{
		forget: func(context.Context, *fuser.RequestHeader, *fuser.ForgetRequest) {
			panic("forget exploded")
		},
	}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	ch.push(initRequest(1, 7, 31))
	code, _, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)

	var body []byte
	body = binary.NativeEndian.AppendUint64(body, 1) // nlookup
	ch.push(rawRequest(fuser.OpForget, 2, fuser.Node(5), body))

	// The panic stays inside the dispatcher; the session keeps serving.
	ch.push(rawRequest(fuser.OpStatfs, 3, fuser.RootNode, nil))
	code, unique, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x26), code)
	require.Equal(t, uint64(3), unique)

	s.Close()
	require.NoError(t, awaitServe(t, served))
}

func TestSession_InterruptAnswersENOSYS(t *testing.T) {
	h := &testHandler{}
	s, ch := newTestSession(t, h, SessionOptions{})
	served := serveSession(t, s)

	ch.push(initRequest(1, 7, 31))
	code, _, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)

	var body []byte
	body = binary.NativeEndian.AppendUint64(body, 42) // interrupted id
	ch.push(rawRequest(fuser.OpInterrupt, 2, fuser.RootNode, body))

	code, unique, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x26), code)
	require.Equal(t, uint64(2), unique)

	s.Close()
	require.NoError(t, awaitServe(t, served))
}
