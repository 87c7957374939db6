package fuser

// NotifyCode tags an unsolicited driver-to-kernel message. Notifications are
// a distinct message family from replies: they carry no request id, only
// their code, which travels in the error field of the out header with a
// unique of zero.
type NotifyCode int32

const (
	NotifyPoll       NotifyCode = 1
	NotifyInvalInode NotifyCode = 2
	NotifyInvalEntry NotifyCode = 3
	NotifyStore      NotifyCode = 4
	NotifyRetrieve   NotifyCode = 5
	NotifyDelete     NotifyCode = 6
)

// Notification is implemented by unsolicited driver-to-kernel messages.
type Notification interface {
	NotifyCode() NotifyCode
}

type (
	// PollWakeupNotification wakes up a poller registered through a poll
	// request carrying PollScheduleNotify.
	PollWakeupNotification struct {
		PollHandle uint64 // Matches PollRequest.PollHandle.
	}

	// InvalEntryNotification invalidates the kernel's cache of one directory
	// entry.
	InvalEntryNotification struct {
		Parent Node
		Name   string
	}

	// InvalInodeNotification invalidates cached attributes and, for the
	// given byte range, cached data of an inode. A negative Length
	// invalidates to the end of the file.
	InvalInodeNotification struct {
		Node   Node
		Offset int64
		Length int64
	}

	// StoreNotification pushes data into the kernel's page cache for an
	// inode.
	StoreNotification struct {
		Node   Node
		Offset uint64
		Data   []byte
	}

	// DeleteNotification tells the kernel a directory entry was removed,
	// invalidating both the entry and the inode behind it.
	DeleteNotification struct {
		Parent Node
		Child  Node
		Name   string
	}
)

func (*PollWakeupNotification) NotifyCode() NotifyCode { return NotifyPoll }
func (*InvalEntryNotification) NotifyCode() NotifyCode { return NotifyInvalEntry }
func (*InvalInodeNotification) NotifyCode() NotifyCode { return NotifyInvalInode }
func (*StoreNotification) NotifyCode() NotifyCode      { return NotifyStore }
func (*DeleteNotification) NotifyCode() NotifyCode     { return NotifyDelete }
