package fuse

import (
	"os"
	"syscall"
)

// toLinuxMode converts a Go file mode to the kernel's S_IF* representation.
func toLinuxMode(in os.FileMode) uint32 {
	var out uint32
	out = uint32(in) & 0o7777
	switch {
	case in&os.ModeType == 0:
		out |= syscall.S_IFREG
	case in&os.ModeDir != 0:
		out |= syscall.S_IFDIR
	case in&os.ModeDevice != 0 && in&os.ModeCharDevice != 0:
		out |= syscall.S_IFCHR
	case in&os.ModeDevice != 0:
		out |= syscall.S_IFBLK
	case in&os.ModeNamedPipe != 0:
		out |= syscall.S_IFIFO
	case in&os.ModeSymlink != 0:
		out |= syscall.S_IFLNK
	case in&os.ModeSocket != 0:
		out |= syscall.S_IFSOCK
	}
	if in&os.ModeSetuid != 0 {
		out |= syscall.S_ISUID
	}
	if in&os.ModeSetgid != 0 {
		out |= syscall.S_ISGID
	}
	if in&os.ModeSticky != 0 {
		out |= syscall.S_ISVTX
	}
	return out
}

// toNativeMode converts the kernel's S_IF* representation to a Go file mode.
func toNativeMode(in uint32) os.FileMode {
	out := os.FileMode(in & 0o777)
	switch in & syscall.S_IFMT {
	case syscall.S_IFBLK:
		out |= os.ModeDevice
	case syscall.S_IFCHR:
		out |= os.ModeDevice | os.ModeCharDevice
	case syscall.S_IFDIR:
		out |= os.ModeDir
	case syscall.S_IFIFO:
		out |= os.ModeNamedPipe
	case syscall.S_IFLNK:
		out |= os.ModeSymlink
	case syscall.S_IFREG:
		// nothing to do
	case syscall.S_IFSOCK:
		out |= os.ModeSocket
	}
	if in&syscall.S_ISGID != 0 {
		out |= os.ModeSetgid
	}
	if in&syscall.S_ISUID != 0 {
		out |= os.ModeSetuid
	}
	if in&syscall.S_ISVTX != 0 {
		out |= os.ModeSticky
	}
	return out
}
