package fuse

import (
	"encoding/binary"
	"fmt"

	"github.com/cberner/fuser-sub000/fuser"
)

// Compat truncation points for version-conditional records. Older kernels
// expect shorter prefixes of the modern layouts.
const (
	compatAttrSize     = 80 // attr before 7.9 (no blksize)
	compatInitOutSize  = 8  // init reply before 7.5
	compatInitOut22    = 24 // init reply before 7.23
	compatStatfsSize   = 48 // statfs reply before 7.4
	direntSize         = 24 // dirent header, excluding name
)

// EncodeResponse encodes hdr plus resp into a list of buffers for a single
// vectored write; the kernel must see header and payload as one message.
// The header's length field is the exact total of all buffers. Error replies
// and replies to operations without response payloads carry the header only.
func (c Codec) EncodeResponse(hdr fuser.ResponseHeader, resp fuser.Response) ([][]byte, error) {
	if hdr.Error != 0 || resp == nil {
		return c.finish(hdr, nil, nil), nil
	}

	var aw argWriter

	switch resp := resp.(type) {
	case *fuser.EntryResponse:
		c.writeEntry(&aw, resp.Entry)

	case *fuser.AttrResponse:
		sec, nsec := fuser.SplitDuration(resp.TTL)
		aw.U64(sec)
		aw.U32(nsec)
		aw.Pad(4)
		c.writeAttr(&aw, resp.Attrib)

	case *fuser.ReadlinkResponse:
		return c.finish(hdr, nil, resp.Contents), nil

	case *fuser.OpenedResponse:
		aw.U64(uint64(resp.Handle))
		aw.U32(uint32(resp.OpenedFlags))
		aw.Pad(4)

	case *fuser.ReadResponse:
		return c.finish(hdr, nil, resp.Data), nil

	case *fuser.WriteResponse:
		aw.U32(resp.Written)
		aw.Pad(4)

	case *fuser.StatfsResponse:
		aw.U64(resp.Stats.Blocks)
		aw.U64(resp.Stats.BlocksFree)
		aw.U64(resp.Stats.BlocksAvailable)
		aw.U64(resp.Stats.Files)
		aw.U64(resp.Stats.FilesFree)
		aw.U32(resp.Stats.BlockSize)
		aw.U32(resp.Stats.MaxNameLen)
		aw.U32(resp.Stats.FragmentSize)
		aw.Pad(4 + 6*4) // padding + spare
		if c.Minor < 4 {
			aw.buf = aw.buf[:compatStatfsSize]
		}

	case *fuser.XattrResponse:
		// Data answers the read; nil answers a size probe.
		if resp.Data != nil {
			return c.finish(hdr, nil, resp.Data), nil
		}
		aw.U32(resp.Size)
		aw.Pad(4)

	case *fuser.LockResponse:
		aw.U64(resp.Lock.Start)
		aw.U64(resp.Lock.End)
		aw.U32(uint32(resp.Lock.Type))
		aw.U32(resp.Lock.PID)

	case *fuser.InitResponse:
		aw.U32(resp.EarliestVersion.Major)
		aw.U32(resp.EarliestVersion.Minor)
		aw.U32(resp.MaxReadahead)
		aw.U32(uint32(resp.Flags))
		aw.U16(resp.MaxBackground)
		aw.U16(resp.CongestionThreshold)
		aw.U32(resp.MaxWrite)
		aw.U32(resp.TimeGran)
		aw.U16(resp.MaxPages)
		aw.U16(resp.MapAlignment)
		aw.U32(uint32(resp.Flags >> 32))
		aw.Pad(7 * 4) // unused
		// Old kernels read fixed shorter prefixes of the init reply.
		switch {
		case resp.EarliestVersion.Minor < 5:
			aw.buf = aw.buf[:compatInitOutSize]
		case resp.EarliestVersion.Minor < 23:
			aw.buf = aw.buf[:compatInitOut22]
		}

	case *fuser.ReaddirResponse:
		// The kernel expects a packed list of (dirent, name) tuples. The
		// offset recorded in each entry is the resume cookie: the byte
		// position just past the entry. Tuple starts must be 64-bit aligned
		// for 32-bit kernels, so names are zero-padded.
		var offset uint64
		for _, ent := range resp.Entries {
			offset += align64(direntSize + uint64(len(ent.Name)))
			c.writeDirent(&aw, ent, offset)
		}

	case *fuser.ReaddirplusResponse:
		var offset uint64
		for _, ent := range resp.Entries {
			offset += align64(uint64(c.entrySize()) + direntSize + uint64(len(ent.DirEntry.Name)))
			c.writeEntry(&aw, ent.Entry)
			c.writeDirent(&aw, ent.DirEntry, offset)
		}

	case *fuser.CreateResponse:
		c.writeEntry(&aw, resp.Entry)
		aw.U64(uint64(resp.Handle))
		aw.U32(uint32(resp.OpenedFlags))
		aw.Pad(4)

	case *fuser.BmapResponse:
		aw.U64(resp.Block)

	case *fuser.IoctlResponse:
		aw.I32(resp.Result)
		aw.U32(0) // flags
		aw.U32(0) // in_iovs
		aw.U32(0) // out_iovs
		return c.finish(hdr, aw.buf, resp.OutData), nil

	case *fuser.PollResponse:
		aw.U32(uint32(resp.Events))
		aw.Pad(4)

	case *fuser.LseekResponse:
		aw.U64(resp.Offset)

	case *fuser.XTimesResponse:
		bsec, bnsec := fuser.SplitTime(resp.XTimes.BackupTime)
		csec, cnsec := fuser.SplitTime(resp.XTimes.CreateTime)
		aw.I64(bsec)
		aw.I64(csec)
		aw.U32(bnsec)
		aw.U32(cnsec)

	default:
		return nil, fmt.Errorf("fuse: unknown response type %T", resp)
	}

	return c.finish(hdr, aw.buf, nil), nil
}

// finish prepends the out header with the exact total length. extra, when
// non-nil, is carried as its own iovec so large payloads aren't copied.
func (c Codec) finish(hdr fuser.ResponseHeader, payload, extra []byte) [][]byte {
	total := OutHeaderSize + len(payload) + len(extra)

	head := make([]byte, 0, OutHeaderSize)
	head = binary.NativeEndian.AppendUint32(head, uint32(total))
	head = binary.NativeEndian.AppendUint32(head, uint32(int32(hdr.Error)))
	head = binary.NativeEndian.AppendUint64(head, hdr.RequestID)

	out := [][]byte{head}
	if len(payload) > 0 {
		out = append(out, payload)
	}
	if len(extra) > 0 {
		out = append(out, extra)
	}
	return out
}

// attrSize is the encoded size of an attribute record under the session's
// layout and negotiated version.
func (c Codec) attrSize() int {
	if c.Layout.OSXAttrFields {
		return 96
	}
	if c.Minor < 9 {
		return compatAttrSize
	}
	return 88
}

// entrySize is the encoded size of an entry record.
func (c Codec) entrySize() int {
	return 40 + c.attrSize()
}

func (c Codec) writeAttr(aw *argWriter, in fuser.Attrib) {
	asec, ansec := fuser.SplitTime(in.LastAccess)
	msec, mnsec := fuser.SplitTime(in.LastModify)
	csec, cnsec := fuser.SplitTime(in.LastChange)

	aw.U64(in.Inode)
	aw.U64(in.Size)
	aw.U64(in.Blocks)
	aw.I64(asec)
	aw.I64(msec)
	aw.I64(csec)
	if c.Layout.OSXAttrFields {
		crsec, crnsec := fuser.SplitTime(in.CreateTime)
		aw.I64(crsec)
		aw.U32(ansec)
		aw.U32(mnsec)
		aw.U32(cnsec)
		aw.U32(crnsec)
		aw.U32(toLinuxMode(in.Mode))
		aw.U32(in.HardLinks)
		aw.U32(in.UID)
		aw.U32(in.GID)
		aw.U32(in.DeviceID)
		aw.U32(in.OSXFlags)
		return
	}
	aw.U32(ansec)
	aw.U32(mnsec)
	aw.U32(cnsec)
	aw.U32(toLinuxMode(in.Mode))
	aw.U32(in.HardLinks)
	aw.U32(in.UID)
	aw.U32(in.GID)
	aw.U32(in.DeviceID)
	if c.Minor >= 9 {
		aw.U32(in.BlockSize)
		aw.Pad(4)
	}
}

func (c Codec) writeEntry(aw *argWriter, in fuser.Entry) {
	esec, ensec := fuser.SplitDuration(in.EntryTTL)
	asec, ansec := fuser.SplitDuration(in.AttribTTL)

	aw.U64(uint64(in.Node))
	aw.U64(in.Generation)
	aw.U64(esec)
	aw.U64(asec)
	aw.U32(ensec)
	aw.U32(ansec)
	c.writeAttr(aw, in.Attrib)
}

func (c Codec) writeDirent(aw *argWriter, ent fuser.DirEntry, offset uint64) {
	aw.U64(ent.Inode)
	aw.U64(offset)
	aw.U32(uint32(len(ent.Name)))
	aw.U32(uint32(ent.Type))
	aw.Bytes([]byte(ent.Name))

	rawSize := direntSize + uint64(len(ent.Name))
	if padded := align64(rawSize); padded > rawSize {
		aw.Pad(int(padded - rawSize))
	}
}
