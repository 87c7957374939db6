package fuser

import "fmt"

// Op is the opcode of a protocol message. The opcode space is dense except
// for a platform-only range (61-63, used by macOS kernels) and the
// out-of-band CUSE init value.
type Op uint32

// Known opcodes.
const (
	OpLookup        Op = 1
	OpForget        Op = 2 // No reply.
	OpGetattr       Op = 3
	OpSetattr       Op = 4
	OpReadlink      Op = 5
	OpSymlink       Op = 6
	OpMknod         Op = 8
	OpMkdir         Op = 9
	OpUnlink        Op = 10
	OpRmdir         Op = 11
	OpRename        Op = 12
	OpLink          Op = 13
	OpOpen          Op = 14
	OpRead          Op = 15
	OpWrite         Op = 16
	OpStatfs        Op = 17
	OpRelease       Op = 18
	OpFsync         Op = 20
	OpSetxattr      Op = 21
	OpGetxattr      Op = 22
	OpListxattr     Op = 23
	OpRemovexattr   Op = 24
	OpFlush         Op = 25
	OpInit          Op = 26
	OpOpendir       Op = 27
	OpReaddir       Op = 28
	OpReleasedir    Op = 29
	OpFsyncDir      Op = 30
	OpGetLock       Op = 31
	OpSetLock       Op = 32
	OpSetLockWait   Op = 33
	OpAccess        Op = 34
	OpCreate        Op = 35
	OpInterrupt     Op = 36
	OpBmap          Op = 37
	OpDestroy       Op = 38
	OpIoctl         Op = 39
	OpPoll          Op = 40
	OpNotifyReply   Op = 41
	OpBatchForget   Op = 42 // No reply.
	OpFallocate     Op = 43
	OpReaddirplus   Op = 44
	OpRename2       Op = 45
	OpLseek         Op = 46
	OpCopyFileRange Op = 47

	// macOS-only opcodes.
	OpSetVolName Op = 61
	OpGetXTimes  Op = 62
	OpExchange   Op = 63

	// OpCUSEInit initializes a CUSE (character device in userspace) session.
	// It sits outside the dense opcode range.
	OpCUSEInit Op = 4096
)

var opNames = map[Op]string{
	OpLookup:        "lookup",
	OpForget:        "forget",
	OpGetattr:       "getattr",
	OpSetattr:       "setattr",
	OpReadlink:      "readlink",
	OpSymlink:       "symlink",
	OpMknod:         "mknod",
	OpMkdir:         "mkdir",
	OpUnlink:        "unlink",
	OpRmdir:         "rmdir",
	OpRename:        "rename",
	OpLink:          "link",
	OpOpen:          "open",
	OpRead:          "read",
	OpWrite:         "write",
	OpStatfs:        "statfs",
	OpRelease:       "release",
	OpFsync:         "fsync",
	OpSetxattr:      "setxattr",
	OpGetxattr:      "getxattr",
	OpListxattr:     "listxattr",
	OpRemovexattr:   "removexattr",
	OpFlush:         "flush",
	OpInit:          "init",
	OpOpendir:       "opendir",
	OpReaddir:       "readdir",
	OpReleasedir:    "releasedir",
	OpFsyncDir:      "fsyncdir",
	OpGetLock:       "getlk",
	OpSetLock:       "setlk",
	OpSetLockWait:   "setlkw",
	OpAccess:        "access",
	OpCreate:        "create",
	OpInterrupt:     "interrupt",
	OpBmap:          "bmap",
	OpDestroy:       "destroy",
	OpIoctl:         "ioctl",
	OpPoll:          "poll",
	OpNotifyReply:   "notify_reply",
	OpBatchForget:   "batch_forget",
	OpFallocate:     "fallocate",
	OpReaddirplus:   "readdirplus",
	OpRename2:       "rename2",
	OpLseek:         "lseek",
	OpCopyFileRange: "copy_file_range",
	OpSetVolName:    "setvolname",
	OpGetXTimes:     "getxtimes",
	OpExchange:      "exchange",
	OpCUSEInit:      "cuse_init",
}

// String implements fmt.Stringer.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint32(op))
}

// Known reports whether op is a defined opcode.
func (op Op) Known() bool {
	_, ok := opNames[op]
	return ok
}

// NoReply reports whether op is fire-and-forget: the kernel never expects a
// reply for it and writing one is a protocol violation.
func (op Op) NoReply() bool {
	return op == OpForget || op == OpBatchForget
}
