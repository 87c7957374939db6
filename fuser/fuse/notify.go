package fuse

import (
	"encoding/binary"
	"fmt"

	"github.com/cberner/fuser-sub000/fuser"
)

// EncodeNotify encodes an unsolicited driver-to-kernel message into a list
// of buffers for a single vectored write. Notifications share the out header
// with replies but carry their code in the error field and a unique of zero.
func (c Codec) EncodeNotify(n fuser.Notification) ([][]byte, error) {
	var aw argWriter
	var extra []byte

	switch n := n.(type) {
	case *fuser.PollWakeupNotification:
		aw.U64(n.PollHandle)

	case *fuser.InvalEntryNotification:
		aw.U64(uint64(n.Parent))
		aw.U32(uint32(len(n.Name)))
		aw.Pad(4)
		aw.String(n.Name)

	case *fuser.InvalInodeNotification:
		aw.U64(uint64(n.Node))
		aw.I64(n.Offset)
		aw.I64(n.Length)

	case *fuser.StoreNotification:
		aw.U64(uint64(n.Node))
		aw.U64(n.Offset)
		aw.U32(uint32(len(n.Data)))
		aw.Pad(4)
		extra = n.Data

	case *fuser.DeleteNotification:
		aw.U64(uint64(n.Parent))
		aw.U64(uint64(n.Child))
		aw.U32(uint32(len(n.Name)))
		aw.Pad(4)
		aw.String(n.Name)

	default:
		return nil, fmt.Errorf("fuse: unknown notification type %T", n)
	}

	total := OutHeaderSize + aw.Len() + len(extra)

	head := make([]byte, 0, OutHeaderSize)
	head = binary.NativeEndian.AppendUint32(head, uint32(total))
	head = binary.NativeEndian.AppendUint32(head, uint32(n.NotifyCode()))
	head = binary.NativeEndian.AppendUint64(head, 0)

	out := [][]byte{head, aw.buf}
	if len(extra) > 0 {
		out = append(out, extra)
	}
	return out, nil
}
