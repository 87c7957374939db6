package fuse

import (
	"errors"

	"github.com/cberner/fuser-sub000/fuser"
)

// InHeaderSize is the size of the fixed request header.
const InHeaderSize = 40

// OutHeaderSize is the size of the fixed reply header.
const OutHeaderSize = 16

// Codec is the pure (de)serializer for protocol messages. It is stateless
// beyond its configuration and safe for concurrent use.
type Codec struct {
	// Layout selects the platform shape of the wire records.
	Layout Layout

	// Minor is the negotiated protocol minor version, which gates
	// version-conditional record layouts. Zero is fine before the handshake
	// completes; init requests decode the same under every minor.
	Minor uint32
}

// DecodeRequest decodes one message read from the device into its header and
// typed operation. Operations without arguments decode to a nil Request.
//
// A decode error means the stream is desynchronized and is fatal to the
// owning session.
func (c Codec) DecodeRequest(buf []byte) (hdr fuser.RequestHeader, req fuser.Request, err error) {
	// Argument accessors panic when the message runs short; catch it here
	// and return an error instead.
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if rerr, ok := r.(error); ok && errors.Is(rerr, ErrInsufficientData) {
			err = rerr
			return
		}
		panic(r)
	}()

	if len(buf) < InHeaderSize {
		return hdr, nil, ErrShortReadHeader
	}

	ar := argReader{data: buf}
	var (
		length = ar.U32()
		opcode = ar.U32()
		unique = ar.U64()
		nodeid = ar.U64()
		uid    = ar.U32()
		gid    = ar.U32()
		pid    = ar.U32()
	)
	ar.Skip(4) // header padding

	// The kernel over-allocates nothing: the declared length never exceeds
	// what was read. A receive buffer larger than the message is normal.
	if int(length) > len(buf) {
		return hdr, nil, &ShortReadError{Declared: length, Actual: len(buf)}
	}
	ar.data = buf[:length]

	op := fuser.Op(opcode)
	if !c.Layout.SupportsOp(op) {
		return hdr, nil, &UnknownOpcodeError{Opcode: opcode}
	}

	hdr = fuser.RequestHeader{
		Op:        op,
		RequestID: unique,
		Node:      fuser.Node(nodeid),
		UID:       uid,
		GID:       gid,
		PID:       pid,
	}

	// Arguments are listed in the same order the kernel sends them. Do not
	// re-order the reads.
	switch op {
	case fuser.OpLookup:
		var (
			name = ar.String()
		)
		return hdr, &fuser.LookupRequest{Name: name}, nil

	case fuser.OpForget:
		var (
			nlookup = ar.U64()
		)
		return hdr, &fuser.ForgetRequest{NumLookups: nlookup}, nil

	case fuser.OpGetattr:
		// The getattr record only exists since 7.9.
		if c.Minor < 9 {
			return hdr, &fuser.GetattrRequest{}, nil
		}
		var (
			flags = ar.U32()
			_     = ar.U32() // dummy
			fh    = ar.U64()
		)
		return hdr, &fuser.GetattrRequest{
			Flags:  fuser.GetAttribFlags(flags),
			Handle: fuser.Handle(fh),
		}, nil

	case fuser.OpSetattr:
		req := &fuser.SetattrRequest{}
		var (
			valid = ar.U32()
			_     = ar.U32() // padding
			fh    = ar.U64()
			size  = ar.U64()
			owner = ar.U64()
			atime = ar.I64()
			mtime = ar.I64()
			ctime = ar.I64()
		)
		var (
			atimensec = ar.U32()
			mtimensec = ar.U32()
			ctimensec = ar.U32()
			mode      = ar.U32()
		)
		ar.Skip(4) // unused
		var (
			uid = ar.U32()
			gid = ar.U32()
		)
		ar.Skip(4) // unused
		if c.Layout.OSXAttrFields {
			var (
				bkuptime     = ar.I64()
				crtime       = ar.I64()
				bkuptimensec = ar.U32()
				crtimensec   = ar.U32()
				flags        = ar.U32()
			)
			req.BackupTime = fuser.MakeTime(bkuptime, bkuptimensec)
			req.CreateTime = fuser.MakeTime(crtime, crtimensec)
			req.OSXFlags = flags
		}
		req.UpdateMask = fuser.AttribMask(valid)
		req.Handle = fuser.Handle(fh)
		req.Size = size
		req.LockOwner = fuser.LockOwner(owner)
		req.LastAccess = fuser.MakeTime(atime, atimensec)
		req.LastModify = fuser.MakeTime(mtime, mtimensec)
		req.LastChange = fuser.MakeTime(ctime, ctimensec)
		req.Mode = toNativeMode(mode)
		req.UID = uid
		req.GID = gid
		return hdr, req, nil

	case fuser.OpReadlink, fuser.OpStatfs, fuser.OpDestroy, fuser.OpGetXTimes:
		return hdr, nil, nil

	case fuser.OpSymlink:
		var (
			source   = ar.String()
			linkname = ar.String()
		)
		return hdr, &fuser.SymlinkRequest{Source: source, LinkName: linkname}, nil

	case fuser.OpMknod:
		var (
			mode = ar.U32()
			rdev = ar.U32()
		)
		var umask uint32
		if c.Minor >= 12 {
			umask = ar.U32()
			ar.Skip(4) // padding
		}
		var (
			name = ar.String()
		)
		return hdr, &fuser.MknodRequest{
			Mode:     toNativeMode(mode),
			DeviceID: rdev,
			Umask:    toNativeMode(umask),
			Name:     name,
		}, nil

	case fuser.OpMkdir:
		var (
			mode  = ar.U32()
			umask = ar.U32()
			name  = ar.String()
		)
		if c.Minor < 12 {
			umask = 0
		}
		return hdr, &fuser.MkdirRequest{
			Mode:  toNativeMode(mode),
			Umask: toNativeMode(umask),
			Name:  name,
		}, nil

	case fuser.OpUnlink:
		var (
			name = ar.String()
		)
		return hdr, &fuser.UnlinkRequest{Name: name}, nil

	case fuser.OpRmdir:
		var (
			name = ar.String()
		)
		return hdr, &fuser.RmdirRequest{Name: name}, nil

	case fuser.OpRename:
		var (
			newdir  = ar.U64()
			oldName = ar.String()
			newName = ar.String()
		)
		return hdr, &fuser.RenameRequest{
			NewDir:  fuser.Node(newdir),
			OldName: oldName,
			NewName: newName,
		}, nil

	case fuser.OpRename2:
		var (
			newdir  = ar.U64()
			flags   = ar.U32()
			_       = ar.U32() // padding
			oldName = ar.String()
			newName = ar.String()
		)
		return hdr, &fuser.RenameRequest{
			NewDir:  fuser.Node(newdir),
			OldName: oldName,
			NewName: newName,
			Flags:   fuser.RenameFlags(flags),
		}, nil

	case fuser.OpExchange:
		var (
			olddir  = ar.U64()
			newdir  = ar.U64()
			options = ar.U64()
			oldName = ar.String()
			newName = ar.String()
		)
		return hdr, &fuser.ExchangeRequest{
			OldDir:  fuser.Node(olddir),
			NewDir:  fuser.Node(newdir),
			Options: options,
			OldName: oldName,
			NewName: newName,
		}, nil

	case fuser.OpLink:
		var (
			oldnode = ar.U64()
			newName = ar.String()
		)
		return hdr, &fuser.LinkRequest{
			OldNode: fuser.Node(oldnode),
			NewName: newName,
		}, nil

	case fuser.OpOpen, fuser.OpOpendir:
		var (
			flags = ar.U32()
			_     = ar.U32() // open_flags, unused inbound
		)
		return hdr, &fuser.OpenRequest{
			Flags: fuser.FileFlags(flags),
		}, nil

	case fuser.OpRead, fuser.OpReaddir, fuser.OpReaddirplus:
		var (
			fh     = ar.U64()
			offset = ar.U64()
			size   = ar.U32()
		)
		req := &fuser.ReadRequest{
			Handle: fuser.Handle(fh),
			Offset: offset,
			Size:   size,
		}
		// read_flags, lock_owner and flags only exist since 7.9.
		if c.Minor >= 9 {
			var (
				readFlags = ar.U32()
				owner     = ar.U64()
				flags     = ar.U32()
			)
			ar.Skip(4) // padding
			req.Flags = fuser.ReadFlags(readFlags)
			req.LockOwner = fuser.LockOwner(owner)
			req.FileFlags = fuser.FileFlags(flags)
		} else {
			ar.Skip(4) // padding
		}
		return hdr, req, nil

	case fuser.OpWrite:
		var (
			fh         = ar.U64()
			offset     = ar.U64()
			size       = ar.U32()
			writeFlags = ar.U32()
		)
		req := &fuser.WriteRequest{
			Handle: fuser.Handle(fh),
			Offset: offset,
			Flags:  fuser.WriteFlags(writeFlags),
		}
		if c.Minor >= 9 {
			var (
				owner = ar.U64()
				flags = ar.U32()
			)
			ar.Skip(4) // padding
			req.LockOwner = fuser.LockOwner(owner)
			req.FileFlags = fuser.FileFlags(flags)
		}
		req.Data = ar.Bytes(int(size))
		return hdr, req, nil

	case fuser.OpRelease, fuser.OpReleasedir:
		var (
			fh           = ar.U64()
			flags        = ar.U32()
			releaseFlags = ar.U32()
			owner        = ar.U64()
		)
		return hdr, &fuser.ReleaseRequest{
			Handle:    fuser.Handle(fh),
			Flags:     fuser.ReleaseFlags(releaseFlags),
			FileFlags: fuser.FileFlags(flags),
			LockOwner: fuser.LockOwner(owner),
		}, nil

	case fuser.OpFsync, fuser.OpFsyncDir:
		var (
			fh    = ar.U64()
			flags = ar.U32()
			_     = ar.U32() // padding
		)
		return hdr, &fuser.FsyncRequest{
			Handle: fuser.Handle(fh),
			Flags:  fuser.SyncFlags(flags),
		}, nil

	case fuser.OpSetxattr:
		var (
			size  = ar.U32()
			flags = ar.U32()
		)
		var position uint32
		if c.Layout.OSXAttrFields {
			position = ar.U32()
			ar.Skip(4) // padding
		}
		var (
			name  = ar.String()
			value = ar.Bytes(int(size))
		)
		return hdr, &fuser.SetxattrRequest{
			Name:     name,
			Value:    value,
			Flags:    fuser.ExtendedAttribFlags(flags),
			Position: position,
		}, nil

	case fuser.OpGetxattr:
		var (
			size = ar.U32()
			_    = ar.U32() // padding
		)
		var position uint32
		if c.Layout.OSXAttrFields {
			position = ar.U32()
			ar.Skip(4) // padding
		}
		var (
			name = ar.String()
		)
		return hdr, &fuser.GetxattrRequest{
			Name:     name,
			Size:     size,
			Position: position,
		}, nil

	case fuser.OpListxattr:
		var (
			size = ar.U32()
			_    = ar.U32() // padding
		)
		return hdr, &fuser.ListxattrRequest{Size: size}, nil

	case fuser.OpRemovexattr:
		var (
			name = ar.String()
		)
		return hdr, &fuser.RemovexattrRequest{Name: name}, nil

	case fuser.OpFlush:
		var (
			fh    = ar.U64()
			_     = ar.U32() // unused
			_     = ar.U32() // padding
			owner = ar.U64()
		)
		return hdr, &fuser.FlushRequest{
			Handle:    fuser.Handle(fh),
			LockOwner: fuser.LockOwner(owner),
		}, nil

	case fuser.OpInit:
		var (
			major        = ar.U32()
			minor        = ar.U32()
			maxReadahead = ar.U32()
			flags        = uint64(ar.U32())
		)
		// 7.36 widened the capability bitset with a second flags word.
		if minor >= 36 && ar.Remaining() >= 4 {
			flags |= uint64(ar.U32()) << 32
		}
		return hdr, &fuser.InitRequest{
			LatestVersion: fuser.Version{Major: major, Minor: minor},
			MaxReadahead:  maxReadahead,
			Flags:         fuser.InitFlags(flags),
		}, nil

	case fuser.OpGetLock:
		var (
			fh    = ar.U64()
			owner = ar.U64()
			start = ar.U64()
			end   = ar.U64()
			typ   = ar.U32()
			pid   = ar.U32()
			flags = ar.U32()
			_     = ar.U32() // padding
		)
		return hdr, &fuser.GetLockRequest{
			Handle: fuser.Handle(fh),
			Owner:  fuser.LockOwner(owner),
			Lock:   fuser.Lock{Start: start, End: end, Type: fuser.LockType(typ), PID: pid},
			Flags:  fuser.LockFlags(flags),
		}, nil

	case fuser.OpSetLock, fuser.OpSetLockWait:
		var (
			fh    = ar.U64()
			owner = ar.U64()
			start = ar.U64()
			end   = ar.U64()
			typ   = ar.U32()
			pid   = ar.U32()
			flags = ar.U32()
			_     = ar.U32() // padding
		)
		return hdr, &fuser.SetLockRequest{
			Handle: fuser.Handle(fh),
			Owner:  fuser.LockOwner(owner),
			Lock:   fuser.Lock{Start: start, End: end, Type: fuser.LockType(typ), PID: pid},
			Flags:  fuser.LockFlags(flags),
			Wait:   op == fuser.OpSetLockWait,
		}, nil

	case fuser.OpAccess:
		var (
			mask = ar.U32()
			_    = ar.U32() // padding
		)
		return hdr, &fuser.AccessRequest{
			Mask: toNativeMode(mask),
		}, nil

	case fuser.OpCreate:
		var (
			flags = ar.U32()
			mode  = ar.U32()
		)
		var umask uint32
		if c.Minor >= 12 {
			umask = ar.U32()
			ar.Skip(4) // padding
		}
		var (
			name = ar.String()
		)
		return hdr, &fuser.CreateRequest{
			Flags: fuser.FileFlags(flags),
			Mode:  toNativeMode(mode),
			Umask: toNativeMode(umask),
			Name:  name,
		}, nil

	case fuser.OpInterrupt:
		var (
			unique = ar.U64()
		)
		return hdr, &fuser.InterruptRequest{RequestID: unique}, nil

	case fuser.OpBmap:
		var (
			block     = ar.U64()
			blockSize = ar.U32()
			_         = ar.U32() // padding
		)
		return hdr, &fuser.BmapRequest{Block: block, BlockSize: blockSize}, nil

	case fuser.OpIoctl:
		var (
			fh      = ar.U64()
			flags   = ar.U32()
			cmd     = ar.U32()
			arg     = ar.U64()
			inSize  = ar.U32()
			outSize = ar.U32()
			inData  = ar.Bytes(int(inSize))
		)
		return hdr, &fuser.IoctlRequest{
			Handle:   fuser.Handle(fh),
			Flags:    fuser.DeviceControlFlags(flags),
			Command:  cmd,
			Argument: arg,
			InData:   inData,
			OutSize:  outSize,
		}, nil

	case fuser.OpPoll:
		var (
			fh     = ar.U64()
			kh     = ar.U64()
			flags  = ar.U32()
			events = ar.U32()
		)
		return hdr, &fuser.PollRequest{
			Handle:     fuser.Handle(fh),
			PollHandle: kh,
			Flags:      fuser.PollFlags(flags),
			Events:     fuser.PollEvents(events),
		}, nil

	case fuser.OpNotifyReply:
		var (
			_      = ar.U64() // dummy1
			offset = ar.U64()
			size   = ar.U32()
			_      = ar.U32() // dummy2
			_      = ar.U64() // dummy3
			_      = ar.U64() // dummy4
			data   = ar.Bytes(int(size))
		)
		return hdr, &fuser.NotifyReplyRequest{Offset: offset, Data: data}, nil

	case fuser.OpBatchForget:
		// BatchForget sends an array of arguments, decoded in a loop.
		var (
			count = ar.U32()
			_     = ar.U32() // dummy
			items []fuser.BatchForgetItem
		)
		for i := 0; i < int(count); i++ {
			var (
				nodeid  = ar.U64()
				nlookup = ar.U64()
			)
			items = append(items, fuser.BatchForgetItem{
				Node:       fuser.Node(nodeid),
				NumLookups: nlookup,
			})
		}
		return hdr, &fuser.BatchForgetRequest{Items: items}, nil

	case fuser.OpFallocate:
		var (
			fh     = ar.U64()
			offset = ar.U64()
			length = ar.U64()
			mode   = ar.U32()
			_      = ar.U32() // padding
		)
		return hdr, &fuser.FallocateRequest{
			Handle: fuser.Handle(fh),
			Offset: offset,
			Length: length,
			Mode:   fuser.FallocateMode(mode),
		}, nil

	case fuser.OpLseek:
		var (
			fh     = ar.U64()
			offset = ar.U64()
			whence = ar.U32()
			_      = ar.U32() // padding
		)
		return hdr, &fuser.LseekRequest{
			Handle: fuser.Handle(fh),
			Offset: offset,
			Whence: fuser.Whence(whence),
		}, nil

	case fuser.OpCopyFileRange:
		var (
			fhIn    = ar.U64()
			offIn   = ar.U64()
			nodeOut = ar.U64()
			fhOut   = ar.U64()
			offOut  = ar.U64()
			length  = ar.U64()
			flags   = ar.U64()
		)
		return hdr, &fuser.CopyFileRangeRequest{
			HandleIn:  fuser.Handle(fhIn),
			OffsetIn:  offIn,
			NodeOut:   fuser.Node(nodeOut),
			HandleOut: fuser.Handle(fhOut),
			OffsetOut: offOut,
			Length:    length,
			Flags:     flags,
		}, nil

	case fuser.OpSetVolName:
		var (
			name = ar.String()
		)
		return hdr, &fuser.SetVolNameRequest{Name: name}, nil

	case fuser.OpCUSEInit:
		var (
			major = ar.U32()
			minor = ar.U32()
			_     = ar.U32() // unused
			flags = ar.U32()
		)
		return hdr, &fuser.CUSEInitRequest{
			LatestVersion: fuser.Version{Major: major, Minor: minor},
			Flags:         fuser.CUSEInitFlags(flags),
		}, nil

	default:
		// Every known opcode is handled above; SupportsOp filtered the rest.
		return hdr, nil, &UnknownOpcodeError{Opcode: opcode}
	}
}
