package fuser

import (
	"os"
	"time"
)

// Protocol types. Each type here is used as part of the request or response
// for a specific operation. Operations without opcode-specific arguments
// (readlink, statfs, destroy, getxtimes) have no request type; their decoded
// request is nil.
type (
	LookupRequest struct {
		Name string
	}
	EntryResponse struct {
		Entry Entry
	}

	ForgetRequest struct {
		NumLookups uint64
	}

	GetattrRequest struct {
		Flags  GetAttribFlags
		Handle Handle
	}
	SetattrRequest struct {
		UpdateMask AttribMask  // Mask indicating which fields to use for the update.
		Handle     Handle      // Handle to set attributes for.
		Size       uint64      // File size.
		LockOwner  LockOwner   // Owner of a lock.
		LastAccess time.Time   // Last time file was accessed.
		LastModify time.Time   // Last time file was modified.
		LastChange time.Time   // Last time inode was updated.
		Mode       os.FileMode // File permissions.
		UID        uint32      // Owner UID
		GID        uint32      // Owner GID

		// macOS-only fields; zero on other platforms.
		CreateTime time.Time
		BackupTime time.Time
		OSXFlags   uint32
	}
	AttrResponse struct {
		TTL    time.Duration // Cache validity of the attributes.
		Attrib Attrib        // Attribute data
	}

	ReadlinkResponse struct {
		Contents []byte // Contents of the link, up to the page size.
	}

	SymlinkRequest struct {
		Source   string // File being created
		LinkName string // File being linked to
	}

	MknodRequest struct {
		Mode     os.FileMode // Permissions for the file
		DeviceID uint32      // Device ID for the special file
		Umask    os.FileMode // Umask of the request
		Name     string      // Name of the file
	}

	MkdirRequest struct {
		Mode  os.FileMode
		Umask os.FileMode
		Name  string
	}

	UnlinkRequest struct {
		Name string
	}

	RmdirRequest struct {
		Name string
	}

	// RenameRequest is used for both plain and extended renames. Flags is
	// always zero for a plain rename.
	RenameRequest struct {
		NewDir           Node
		OldName, NewName string
		Flags            RenameFlags
	}

	// ExchangeRequest atomically swaps two files (macOS only).
	ExchangeRequest struct {
		OldDir           Node
		NewDir           Node
		OldName, NewName string
		Options          uint64
	}

	LinkRequest struct {
		OldNode Node
		NewName string
	}

	OpenRequest struct {
		Flags FileFlags
	}
	OpenedResponse struct {
		Handle      Handle
		OpenedFlags OpenedFlags
	}

	ReadRequest struct {
		Handle    Handle
		Offset    uint64
		Size      uint32
		Flags     ReadFlags
		LockOwner LockOwner
		FileFlags FileFlags
	}
	ReadResponse struct {
		Data []byte
	}

	WriteRequest struct {
		Handle    Handle     // Handle to write to
		Offset    uint64     // Offset in the handle to write
		Data      []byte     // Data to write
		Flags     WriteFlags // Flags for writing
		LockOwner LockOwner  // Owner of the write lock, if one exists.
		FileFlags FileFlags  // Permissions for writing
	}
	WriteResponse struct {
		Written uint32 // Written bytes
	}

	StatfsResponse struct {
		Stats Statfs
	}

	ReleaseRequest struct {
		Handle    Handle
		Flags     ReleaseFlags
		FileFlags FileFlags
		LockOwner LockOwner
	}

	FsyncRequest struct {
		Handle Handle
		Flags  SyncFlags
	}

	SetxattrRequest struct {
		Name  string
		Value []byte
		Flags ExtendedAttribFlags
		// Position within the attribute value; macOS only, used by resource
		// forks. Always zero elsewhere.
		Position uint32
	}

	GetxattrRequest struct {
		Name string
		// Size is the space the kernel reserved for the value. Zero means the
		// kernel is probing for the needed size.
		Size     uint32
		Position uint32 // macOS only.
	}

	ListxattrRequest struct {
		// Size is the space the kernel reserved for the list. Zero means the
		// kernel is probing for the needed size.
		Size uint32
	}

	// XattrResponse answers getxattr and listxattr. When Data is nil the
	// size record is sent back (answering a size probe); otherwise Data is
	// sent raw.
	XattrResponse struct {
		Size uint32
		Data []byte
	}

	RemovexattrRequest struct {
		Name string
	}

	FlushRequest struct {
		Handle    Handle
		LockOwner LockOwner
	}

	InitRequest struct {
		LatestVersion Version   // Latest version supported by the kernel
		MaxReadahead  uint32    // Length of data that can be prefetched
		Flags         InitFlags // Capabilities advertised by the kernel
	}
	InitResponse struct {
		EarliestVersion     Version   // Version the driver will speak
		MaxReadahead        uint32    // Length of data that can be prefetched
		Flags               InitFlags // Enabled capabilities
		MaxBackground       uint16
		CongestionThreshold uint16
		MaxWrite            uint32
		TimeGran            uint32
		MaxPages            uint16
		MapAlignment        uint16
	}

	GetLockRequest struct {
		Handle Handle
		Owner  LockOwner
		Lock   Lock
		Flags  LockFlags
	}
	SetLockRequest struct {
		Handle Handle
		Owner  LockOwner
		Lock   Lock
		Flags  LockFlags
		// Wait is set for setlkw: block until the lock can be acquired.
		Wait bool
	}
	LockResponse struct {
		Lock Lock
	}

	ReaddirResponse struct {
		Entries []DirEntry
	}

	ReaddirplusResponse struct {
		Entries []DirPlusEntry
	}

	AccessRequest struct {
		Mask os.FileMode // Validate access for mask
	}

	CreateRequest struct {
		Flags FileFlags   // Flags for creation
		Mode  os.FileMode // File mode
		Umask os.FileMode // Umask for file
		Name  string      // Name of file to create
	}
	CreateResponse struct {
		Handle      Handle      // Handle to newly created node
		OpenedFlags OpenedFlags // Flags used for the create
		Entry       Entry       // Created node entry
	}

	// InterruptRequest asks to interrupt an ongoing request. No cancellation
	// is implemented at this layer; the dispatcher answers ENOSYS and the
	// kernel falls back to waiting for the original reply.
	InterruptRequest struct {
		RequestID uint64 // Request to interrupt
	}

	BmapRequest struct {
		Block     uint64
		BlockSize uint32
	}
	BmapResponse struct {
		Block uint64
	}

	IoctlRequest struct {
		Handle   Handle
		Flags    DeviceControlFlags
		Command  uint32
		Argument uint64
		InData   []byte
		OutSize  uint32
	}
	IoctlResponse struct {
		Result  int32
		OutData []byte
	}

	PollRequest struct {
		Handle Handle
		// PollHandle correlates a later poll-wakeup notification with this
		// poll.
		PollHandle uint64
		Flags      PollFlags
		Events     PollEvents
	}
	PollResponse struct {
		Events PollEvents
	}

	// NotifyReplyRequest carries the kernel's answer to a retrieve
	// notification. Retrieve is not exposed by this package, so these are
	// answered with ENOSYS, but the payload still decodes cleanly.
	NotifyReplyRequest struct {
		Offset uint64
		Data   []byte
	}

	BatchForgetRequest struct {
		Items []BatchForgetItem
	}

	FallocateRequest struct {
		Handle Handle
		Offset uint64
		Length uint64
		Mode   FallocateMode
	}

	LseekRequest struct {
		Handle Handle // Handle to seek in
		Offset uint64 // Offset to seek to, relative to whence
		Whence Whence
	}
	LseekResponse struct {
		Offset uint64 // New offset in the file
	}

	CopyFileRangeRequest struct {
		HandleIn  Handle
		OffsetIn  uint64
		NodeOut   Node
		HandleOut Handle
		OffsetOut uint64
		Length    uint64
		Flags     uint64
	}

	// SetVolNameRequest sets the volume name (macOS only).
	SetVolNameRequest struct {
		Name string
	}

	// XTimesResponse answers getxtimes (macOS only).
	XTimesResponse struct {
		XTimes XTimes
	}

	CUSEInitRequest struct {
		LatestVersion Version
		Flags         CUSEInitFlags
	}
)

//
// Request / Response type implementations
//

func (*LookupRequest) fuserRequest()        {}
func (*EntryResponse) fuserResponse()       {}
func (*ForgetRequest) fuserRequest()        {}
func (*GetattrRequest) fuserRequest()       {}
func (*SetattrRequest) fuserRequest()       {}
func (*AttrResponse) fuserResponse()        {}
func (*ReadlinkResponse) fuserResponse()    {}
func (*SymlinkRequest) fuserRequest()       {}
func (*MknodRequest) fuserRequest()         {}
func (*MkdirRequest) fuserRequest()         {}
func (*UnlinkRequest) fuserRequest()        {}
func (*RmdirRequest) fuserRequest()         {}
func (*RenameRequest) fuserRequest()        {}
func (*ExchangeRequest) fuserRequest()      {}
func (*LinkRequest) fuserRequest()          {}
func (*OpenRequest) fuserRequest()          {}
func (*OpenedResponse) fuserResponse()      {}
func (*ReadRequest) fuserRequest()          {}
func (*ReadResponse) fuserResponse()        {}
func (*WriteRequest) fuserRequest()         {}
func (*WriteResponse) fuserResponse()       {}
func (*StatfsResponse) fuserResponse()      {}
func (*ReleaseRequest) fuserRequest()       {}
func (*FsyncRequest) fuserRequest()         {}
func (*SetxattrRequest) fuserRequest()      {}
func (*GetxattrRequest) fuserRequest()      {}
func (*ListxattrRequest) fuserRequest()     {}
func (*XattrResponse) fuserResponse()       {}
func (*RemovexattrRequest) fuserRequest()   {}
func (*FlushRequest) fuserRequest()         {}
func (*InitRequest) fuserRequest()          {}
func (*InitResponse) fuserResponse()        {}
func (*GetLockRequest) fuserRequest()       {}
func (*SetLockRequest) fuserRequest()       {}
func (*LockResponse) fuserResponse()        {}
func (*ReaddirResponse) fuserResponse()     {}
func (*ReaddirplusResponse) fuserResponse() {}
func (*AccessRequest) fuserRequest()        {}
func (*CreateRequest) fuserRequest()        {}
func (*CreateResponse) fuserResponse()      {}
func (*InterruptRequest) fuserRequest()     {}
func (*BmapRequest) fuserRequest()          {}
func (*BmapResponse) fuserResponse()        {}
func (*IoctlRequest) fuserRequest()         {}
func (*IoctlResponse) fuserResponse()       {}
func (*PollRequest) fuserRequest()          {}
func (*PollResponse) fuserResponse()        {}
func (*NotifyReplyRequest) fuserRequest()   {}
func (*BatchForgetRequest) fuserRequest()   {}
func (*FallocateRequest) fuserRequest()     {}
func (*LseekRequest) fuserRequest()         {}
func (*LseekResponse) fuserResponse()       {}
func (*CopyFileRangeRequest) fuserRequest() {}
func (*SetVolNameRequest) fuserRequest()    {}
func (*XTimesResponse) fuserResponse()      {}
func (*CUSEInitRequest) fuserRequest()      {}
