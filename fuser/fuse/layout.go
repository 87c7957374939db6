// Package fuse implements the kernel-device layer of the protocol: the
// binary codec for requests, replies and notifications, the Channel that
// owns the device file descriptor, and the mount boundary helper.
//
// All multi-byte integers on the wire use native byte order; the protocol is
// local-machine only and never crosses a network.
package fuse

import (
	"runtime"

	"github.com/cberner/fuser-sub000/fuser"
)

// Layout describes the target-specific shape of the wire protocol: which
// opcodes exist and which records carry extra fields. Keeping this as data
// instead of build-tagged struct variants lets one binary drive either
// layout (and lets tests exercise both).
type Layout struct {
	// OS is the GOOS value this layout belongs to.
	OS string

	// LatestMinor is the newest protocol minor version this layout targets.
	LatestMinor uint32

	// OSXAttrFields marks the macOS record variants: attributes carry a
	// creation timestamp and BSD flags, setattr carries backup/creation
	// times, and xattr requests carry a position field.
	OSXAttrFields bool

	// PlatformOps lists opcodes valid only under this layout.
	PlatformOps map[fuser.Op]bool
}

var (
	// LinuxLayout targets Linux kernels, protocol 7.40.
	LinuxLayout = Layout{
		OS:          "linux",
		LatestMinor: 40,
	}

	// DarwinLayout targets macOS kernels, protocol 7.19.
	DarwinLayout = Layout{
		OS:            "darwin",
		LatestMinor:   19,
		OSXAttrFields: true,
		PlatformOps: map[fuser.Op]bool{
			fuser.OpSetVolName: true,
			fuser.OpGetXTimes:  true,
			fuser.OpExchange:   true,
		},
	}
)

// NativeLayout returns the layout for the platform this binary runs on.
func NativeLayout() Layout {
	if runtime.GOOS == "darwin" {
		return DarwinLayout
	}
	return LinuxLayout
}

// LatestVersion returns the newest protocol version this layout targets.
func (l Layout) LatestVersion() fuser.Version {
	return fuser.Version{Major: 7, Minor: l.LatestMinor}
}

// SupportsOp reports whether op is valid under this layout. Platform-only
// opcodes of other layouts are unknown here, but their absence must not
// break decoding of otherwise-valid requests.
func (l Layout) SupportsOp(op fuser.Op) bool {
	if !op.Known() {
		return false
	}
	switch op {
	case fuser.OpSetVolName, fuser.OpGetXTimes, fuser.OpExchange:
		return l.PlatformOps[op]
	}
	return true
}
