//go:build linux

// Command hellofs mounts a read-only filesystem serving a single greeting
// file. It demonstrates the library end to end: mounting, the worker pool,
// middleware, and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "net/http/pprof" // anonymous import to get the pprof handler registered

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mitchellh/go-homedir"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/cberner/fuser-sub000/fuser/fuse"
	"github.com/cberner/fuser-sub000/fuser/server"
	"github.com/cberner/fuser-sub000/internal/cmdutil"
)

func main() {
	var (
		ll          cmdutil.LogLevel
		metricsAddr string
		poolCfg     server.PoolConfig
		allowOther  bool
	)

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.Var(&ll, "log.level", "Level to display logs at")
	fs.StringVar(&metricsAddr, "metrics.addr", "", "address to expose metrics and pprof on (empty to disable)")
	fs.IntVar(&poolCfg.InitialWorkers, "workers", server.DefaultPoolConfig.InitialWorkers, "number of workers to start with")
	fs.IntVar(&poolCfg.MaxWorkers, "workers.max", server.DefaultPoolConfig.MaxWorkers, "maximum number of workers")
	fs.IntVar(&poolCfg.MaxIdleWorkers, "workers.max-idle", 0, "idle workers above this count terminate (0 disables)")
	fs.BoolVar(&poolCfg.CloneFD, "clone-fd", false, "give each worker its own device descriptor")
	fs.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %s\n", err.Error())
		os.Exit(1)
	}

	mountPath := fs.Arg(0)
	if mountPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error finding home directory: %s\n", err.Error())
			os.Exit(1)
		}
		mountPath = filepath.Join(home, "hello")
	}

	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	l = level.NewFilter(l, ll.FilterOption())
	l = log.With(l, "ts", log.DefaultTimestamp, "caller", log.DefaultCaller, "program", "hellofs")

	if err := runMain(l, mountPath, metricsAddr, poolCfg, allowOther); err != nil {
		level.Error(l).Log("msg", "error during run", "err", err)
		os.Exit(1)
	}
}

func runMain(l log.Logger, mountPath, metricsAddr string, poolCfg server.PoolConfig, allowOther bool) error {
	if err := os.MkdirAll(mountPath, 0770); err != nil {
		return fmt.Errorf("creating mount path: %w", err)
	}

	opts := []fuse.MountOption{
		fuse.FSName("hellofs"),
		fuse.Subtype("hellofs"),
		fuse.ReadOnly(),
		fuse.DefaultPermissions(),
	}
	if allowOther {
		opts = append(opts, fuse.AllowOther())
	}

	ch, err := fuse.Mount(l, mountPath, opts...)
	if err != nil {
		return fmt.Errorf("failed to create mount: %w", err)
	}

	reg := prometheus.NewRegistry()
	middleware := []server.Middleware{server.NewMetricsMiddleware(reg)}
	if os.Getenv("HELLOFS_LOG_REQUESTS") != "" {
		middleware = append(middleware, server.NewLoggingMiddleware(l))
	}

	sess, err := server.NewSession(l, ch, server.SessionOptions{
		Handler:        &helloFS{uid: uint32(os.Getuid()), gid: uint32(os.Getgid())},
		Middleware:     middleware,
		Owner:          uint32(os.Getuid()),
		RequestTimeout: 15 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	pool, err := server.NewWorkerPool(l, sess, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			level.Info(l).Log("msg", "serving filesystem", "dir", mountPath)
			return pool.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	if metricsAddr != "" {
		lis, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to create metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
		srv := &http.Server{Handler: mux}

		g.Add(func() error {
			level.Debug(l).Log("msg", "listening for http traffic", "addr", lis.Addr())
			return srv.Serve(lis)
		}, func(error) {
			_ = srv.Close()
		})
	}
	g.Add(run.SignalHandler(context.Background(), os.Interrupt))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		level.Info(l).Log("msg", "signal received, exiting", "signal", sig.Signal)
		return nil
	}
	return err
}

const (
	helloName    = "hello.txt"
	helloContent = "Hello World!\n"
	helloInode   = 2

	cacheTTL = time.Second
)

// helloFS is a read-only filesystem with a single file under the root.
type helloFS struct {
	server.UnimplementedHandler

	uid, gid uint32
}

func (fs *helloFS) rootAttr() fuser.Attrib {
	return fuser.Attrib{
		Inode:     uint64(fuser.RootNode),
		Mode:      os.ModeDir | 0555,
		HardLinks: 2,
		UID:       fs.uid,
		GID:       fs.gid,
		BlockSize: 512,
	}
}

func (fs *helloFS) fileAttr() fuser.Attrib {
	return fuser.Attrib{
		Inode:     helloInode,
		Size:      uint64(len(helloContent)),
		Blocks:    1,
		Mode:      0444,
		HardLinks: 1,
		UID:       fs.uid,
		GID:       fs.gid,
		BlockSize: 512,
	}
}

func (fs *helloFS) Lookup(_ context.Context, hdr *fuser.RequestHeader, req *fuser.LookupRequest) (*fuser.EntryResponse, error) {
	if hdr.Node != fuser.RootNode || req.Name != helloName {
		return nil, fuser.ErrorNotExist
	}
	return &fuser.EntryResponse{Entry: fuser.Entry{
		Node:      helloInode,
		EntryTTL:  cacheTTL,
		AttribTTL: cacheTTL,
		Attrib:    fs.fileAttr(),
	}}, nil
}

func (fs *helloFS) Getattr(_ context.Context, hdr *fuser.RequestHeader, _ *fuser.GetattrRequest) (*fuser.AttrResponse, error) {
	switch hdr.Node {
	case fuser.RootNode:
		return &fuser.AttrResponse{TTL: cacheTTL, Attrib: fs.rootAttr()}, nil
	case helloInode:
		return &fuser.AttrResponse{TTL: cacheTTL, Attrib: fs.fileAttr()}, nil
	default:
		return nil, fuser.ErrorNotExist
	}
}

func (fs *helloFS) Open(_ context.Context, hdr *fuser.RequestHeader, req *fuser.OpenRequest) (*fuser.OpenedResponse, error) {
	if hdr.Node != helloInode {
		return nil, fuser.ErrorIsDirectory
	}
	if req.Flags&fuser.OpenAccessMode != fuser.OpenReadOnly {
		return nil, fuser.ErrorUnauthorized
	}
	return &fuser.OpenedResponse{Handle: 1}, nil
}

func (fs *helloFS) Read(_ context.Context, hdr *fuser.RequestHeader, req *fuser.ReadRequest) (*fuser.ReadResponse, error) {
	if hdr.Node != helloInode {
		return nil, fuser.ErrorNotExist
	}
	data := []byte(helloContent)
	if req.Offset >= uint64(len(data)) {
		return &fuser.ReadResponse{}, nil
	}
	data = data[req.Offset:]
	if uint64(req.Size) < uint64(len(data)) {
		data = data[:req.Size]
	}
	return &fuser.ReadResponse{Data: data}, nil
}

func (fs *helloFS) Opendir(_ context.Context, hdr *fuser.RequestHeader, _ *fuser.OpenRequest) (*fuser.OpenedResponse, error) {
	if hdr.Node != fuser.RootNode {
		return nil, fuser.ErrorNotDirectory
	}
	return &fuser.OpenedResponse{Handle: 1}, nil
}

func (fs *helloFS) Readdir(_ context.Context, hdr *fuser.RequestHeader, req *fuser.ReadRequest) (*fuser.ReaddirResponse, error) {
	if hdr.Node != fuser.RootNode {
		return nil, fuser.ErrorNotDirectory
	}
	if req.Offset > 0 {
		// The whole listing fits in one reply; a nonzero resume offset means
		// the kernel already has everything.
		return &fuser.ReaddirResponse{}, nil
	}
	return &fuser.ReaddirResponse{Entries: []fuser.DirEntry{
		{Inode: uint64(fuser.RootNode), Type: fuser.EntryDirectory, Name: "."},
		{Inode: uint64(fuser.RootNode), Type: fuser.EntryDirectory, Name: ".."},
		{Inode: helloInode, Type: fuser.EntryRegular, Name: helloName},
	}}, nil
}

func (fs *helloFS) Statfs(context.Context, *fuser.RequestHeader) (*fuser.StatfsResponse, error) {
	return &fuser.StatfsResponse{Stats: fuser.Statfs{
		Blocks:     1,
		Files:      1,
		BlockSize:  512,
		MaxNameLen: 255,
	}}, nil
}
