package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/cberner/fuser-sub000/fuser/fuse"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// SessionState is the lifecycle state of a Session.
type SessionState int32

const (
	// SessionCreated is the state before serving starts.
	SessionCreated SessionState = iota

	// SessionHandshaking means the session is serving but the init exchange
	// hasn't completed. Only init requests are dispatched.
	SessionHandshaking

	// SessionReady means the handshake completed and regular requests flow.
	SessionReady

	// SessionDestroyed is terminal: the kernel sent destroy or serving wound
	// down. The handler's teardown hook has run.
	SessionDestroyed
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionHandshaking:
		return "handshaking"
	case SessionReady:
		return "ready"
	case SessionDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultRequestedCaps are the capabilities requested from the kernel unless
// the handler's init hook changes them. Capabilities the kernel doesn't
// advertise are dropped silently from the default set.
const DefaultRequestedCaps = fuser.InitAsyncRead |
	fuser.InitBigWrites |
	fuser.InitNoUmask |
	fuser.InitAutoInvalidateCache |
	fuser.InitAsyncDIO |
	fuser.InitParallelDirOps |
	fuser.InitAbortError |
	fuser.InitMaxPages |
	fuser.InitCacheSymlinks

// SessionOptions configure a Session.
type SessionOptions struct {
	// Handler is used for handling individual requests.
	Handler Handler

	// Optional middleware to preprocess requests with.
	Middleware []Middleware

	// ACL restricts which users may issue requests. Defaults to ACLAll.
	ACL SessionACL

	// Owner is the uid that owns the session, consulted by restricted ACLs.
	Owner uint32

	// RequestTimeout will force a request to abort after a given amount of
	// time. 0 means to never time out.
	RequestTimeout time.Duration

	// Layout overrides the wire layout. The zero value uses the layout native
	// to the platform the binary runs on.
	Layout fuse.Layout

	// RequestedCaps overrides the default capability set requested during
	// the handshake. The handler's init hook can add more.
	RequestedCaps fuser.InitFlags
}

// Session drives one mounted filesystem: it owns the handshake state
// machine and hands decoded requests to the dispatcher. Serve runs it with a
// single goroutine; a WorkerPool runs it with several.
type Session struct {
	log log.Logger
	ch  fuse.Channel
	o   SessionOptions

	layout   fuse.Layout
	dispatch *dispatcher

	state    atomic.Int32
	minor    atomic.Uint32
	maxWrite atomic.Uint32

	destroyOnce sync.Once
}

// Sentinel results from readRequest and handleRequest.
var (
	// errRetryRead marks a transient read condition; the caller re-reads.
	errRetryRead = errors.New("retry read")

	// errSessionExit marks clean session wind-down (unmount, destroy, or the
	// channel closing under us).
	errSessionExit = errors.New("session exit")
)

// NewSession creates a Session reading requests from ch. The Session does
// not take ownership of ch until Serve or a WorkerPool runs it.
func NewSession(l log.Logger, ch fuse.Channel, o SessionOptions) (*Session, error) {
	if o.Handler == nil {
		return nil, fmt.Errorf("Handler must be set")
	}
	if ch == nil {
		return nil, fmt.Errorf("Channel must be set")
	}
	if l == nil {
		l = log.NewNopLogger()
	}

	layout := o.Layout
	if layout.OS == "" {
		layout = fuse.NativeLayout()
	}
	if o.RequestedCaps == 0 {
		o.RequestedCaps = DefaultRequestedCaps
	}

	// Build an optional chain of middleware to handle the request.
	chain := o.Middleware
	if lh, ok := o.Handler.(*LazyHandler); ok {
		chain = append([]Middleware{lazyMiddleware{lh}}, chain...)
	}

	s := &Session{
		log:    l,
		ch:     ch,
		o:      o,
		layout: layout,
		dispatch: &dispatcher{
			log:     l,
			mw:      chainMiddleware(chain),
			invoker: handlerInvoker(o.Handler),
			acl:     o.ACL,
			owner:   o.Owner,
			timeout: o.RequestTimeout,
		},
	}
	s.state.Store(int32(SessionCreated))
	s.maxWrite.Store(fuser.DefaultMaxWrite)
	return s, nil
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Version returns the negotiated protocol version. Before the handshake
// completes the minor version is zero.
func (s *Session) Version() fuser.Version {
	return fuser.Version{Major: 7, Minor: s.minor.Load()}
}

// codec returns the wire codec under the currently negotiated version.
func (s *Session) codec() fuse.Codec {
	return fuse.Codec{Layout: s.layout, Minor: s.minor.Load()}
}

// recvBufferSize is the receive buffer size workers need right now. It can
// grow after the handshake if the init hook raised the write limit.
func (s *Session) recvBufferSize() int {
	return fuse.RecvBufferSize(s.maxWrite.Load())
}

// Serve reads and handles requests with a single goroutine until the
// filesystem is unmounted, the kernel sends destroy, ctx is canceled, or a
// fatal protocol error occurs. The channel is closed when Serve returns.
func (s *Session) Serve(ctx context.Context) error {
	s.state.CAS(int32(SessionCreated), int32(SessionHandshaking))
	defer s.shutdown()

	// Reads against the channel don't observe ctx; a dedicated goroutine
	// closes the channel on cancellation to unblock them.
	exited := make(chan struct{})
	defer func() { <-exited }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer close(exited)
		<-ctx.Done()
		if err := s.ch.Close(); err != nil {
			level.Error(s.log).Log("msg", "error when closing channel", "err", err)
		}
	}()

	var buf []byte
	for {
		if ctx.Err() != nil {
			level.Debug(s.log).Log("msg", "context canceled, breaking out of session read loop")
			return nil
		}
		if need := s.recvBufferSize(); len(buf) < need {
			buf = make([]byte, need)
		}

		hdr, req, err := s.readRequest(s.ch, buf)
		switch {
		case errors.Is(err, errRetryRead):
			continue
		case errors.Is(err, errSessionExit):
			level.Debug(s.log).Log("msg", "session channel wound down; exiting")
			return nil
		case err != nil:
			level.Error(s.log).Log("msg", "session failed", "err", err)
			return err
		}

		if err := s.handleRequest(ctx, s.ch, hdr, req); err != nil {
			if errors.Is(err, errSessionExit) {
				return nil
			}
			return err
		}
	}
}

// Close tears the session down out of band. Blocked readers wake up, and the
// handler's teardown hook runs if it hasn't already.
func (s *Session) Close() error {
	err := s.ch.Close()
	s.shutdown()
	return err
}

// shutdown moves the session to its terminal state and runs the teardown
// hook. Safe to call more than once; the hook runs exactly once.
func (s *Session) shutdown() {
	s.state.Store(int32(SessionDestroyed))
	s.destroyOnce.Do(s.o.Handler.Destroy)
}

// readRequest reads one message from ch into buf and decodes it. Errors are
// either one of the sentinels above or fatal to the session; any decode
// failure means request framing is lost and the connection can't be trusted.
func (s *Session) readRequest(ch fuse.Channel, buf []byte) (fuser.RequestHeader, fuser.Request, error) {
	n, err := ch.Read(buf)
	if err != nil {
		switch {
		case errors.Is(err, unix.ENOENT), errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			// ENOENT means the request we were about to read was interrupted
			// first; EINTR and EAGAIN are ordinary transient conditions.
			return fuser.RequestHeader{}, nil, errRetryRead
		case errors.Is(err, unix.ENODEV):
			// The filesystem was unmounted.
			return fuser.RequestHeader{}, nil, errSessionExit
		case errors.Is(err, unix.EBADF), errors.Is(err, io.EOF):
			// The channel was closed under us.
			return fuser.RequestHeader{}, nil, errSessionExit
		default:
			return fuser.RequestHeader{}, nil, fmt.Errorf("reading from kernel: %w", err)
		}
	}

	hdr, req, err := s.codec().DecodeRequest(buf[:n])
	if err != nil {
		return hdr, nil, fmt.Errorf("decoding request: %w", err)
	}
	return hdr, req, nil
}

// handleRequest routes one decoded request. Init and destroy are consumed
// here; everything else goes through the dispatcher once the session is
// ready.
func (s *Session) handleRequest(ctx context.Context, ch fuse.Channel, hdr fuser.RequestHeader, req fuser.Request) error {
	rs := newReplySender(s.log, ch, s.codec(), hdr)

	switch hdr.Op {
	case fuser.OpInit:
		return s.processHandshake(ctx, rs, hdr, req)

	case fuser.OpDestroy:
		level.Debug(s.log).Log("msg", "received shutdown request from kernel")
		s.shutdown()
		if err := rs.Send(0, nil); err != nil {
			level.Error(s.log).Log("msg", "failed to acknowledge shutdown", "err", err)
		}
		return errSessionExit
	}

	switch s.State() {
	case SessionReady:
		// fall through to dispatch

	case SessionDestroyed:
		// A request raced the wind-down on another worker.
		return errSessionExit

	default:
		// Only init may arrive before the handshake completes.
		level.Error(s.log).Log("msg", "received request before handshake completed", "op", hdr.Op, "state", s.State())
		if !hdr.Op.NoReply() {
			if err := rs.Send(fuser.ErrorIO, nil); err != nil {
				level.Error(s.log).Log("msg", "failed to send reply", "op", hdr.Op, "id", hdr.RequestID, "err", err)
			}
		}
		return fmt.Errorf("%s request received before handshake completed: %w", hdr.Op, fuser.ErrorProtocol)
	}

	s.dispatch.Dispatch(ctx, hdr, req, rs)
	return nil
}

// processHandshake processes an init request from the kernel. Inits may be
// sent multiple times while the peers agree on a protocol version; until the
// handshake completes no other request is dispatched.
func (s *Session) processHandshake(ctx context.Context, rs *replySender, hdr fuser.RequestHeader, req fuser.Request) error {
	init, _ := req.(*fuser.InitRequest)
	if init == nil {
		return fmt.Errorf("missing init message payload from kernel")
	}
	level.Debug(s.log).Log("msg", "got handshake request", "kernel_version", init.LatestVersion)

	if s.State() == SessionReady {
		level.Warn(s.log).Log("msg", "ignoring unexpected post-handshake init message")
		return rs.Send(fuser.ErrorIO, nil)
	}

	latest := s.layout.LatestVersion()

	if init.LatestVersion.Major > latest.Major {
		// Kernel is too new. Tell it which version we speak; it will send
		// another init in a version we understand.
		resp := &fuser.InitResponse{EarliestVersion: latest}
		if err := rs.Send(0, resp); err != nil {
			return err
		}
		return nil
	}
	if init.LatestVersion.Less(fuser.MinVersion) {
		if err := rs.Send(fuser.ErrorProtocol, nil); err != nil {
			level.Error(s.log).Log("msg", "failed to reject handshake", "err", err)
		}
		return fmt.Errorf("kernel version %s too old for local version %s: %w", init.LatestVersion, fuser.MinVersion, fuser.ErrorProtocol)
	}

	minor := latest.Minor
	if init.LatestVersion.Minor < minor {
		minor = init.LatestVersion.Minor
	}

	config := fuser.NewKernelConfig(init, s.o.RequestedCaps)
	if err := s.o.Handler.Init(ctx, config); err != nil {
		if serr := rs.Send(errorForResponse(err), nil); serr != nil {
			level.Error(s.log).Log("msg", "failed to reject handshake", "err", serr)
		}
		return fmt.Errorf("handler init: %w", err)
	}

	resp := config.InitResponse(fuser.Version{Major: 7, Minor: minor}, unix.Getpagesize())
	if err := rs.Send(0, resp); err != nil {
		return err
	}

	s.maxWrite.Store(config.MaxWrite())
	s.minor.Store(minor)
	s.state.Store(int32(SessionReady))
	level.Debug(s.log).Log("msg", "handshake complete", "version", fuser.Version{Major: 7, Minor: minor}, "caps", fmt.Sprintf("%#x", uint64(config.Requested())))
	return nil
}
