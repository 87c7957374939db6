package fuse

import (
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/stretchr/testify/require"
)

// buildRequest assembles a raw request message: the fixed header followed by
// body, with the length field filled in.
func buildRequest(op fuser.Op, unique, nodeid uint64, uid, gid, pid uint32, body []byte) []byte {
	buf := make([]byte, 0, InHeaderSize+len(body))
	buf = binary.NativeEndian.AppendUint32(buf, uint32(InHeaderSize+len(body)))
	buf = binary.NativeEndian.AppendUint32(buf, uint32(op))
	buf = binary.NativeEndian.AppendUint64(buf, unique)
	buf = binary.NativeEndian.AppendUint64(buf, nodeid)
	buf = binary.NativeEndian.AppendUint32(buf, uid)
	buf = binary.NativeEndian.AppendUint32(buf, gid)
	buf = binary.NativeEndian.AppendUint32(buf, pid)
	buf = binary.NativeEndian.AppendUint32(buf, 0) // padding
	return append(buf, body...)
}

func TestDecodeRequest_Init(t *testing.T) {
	var body []byte
	body = binary.NativeEndian.AppendUint32(body, 7)    // major
	body = binary.NativeEndian.AppendUint32(body, 8)    // minor
	body = binary.NativeEndian.AppendUint32(body, 4096) // max_readahead
	body = binary.NativeEndian.AppendUint32(body, 0)    // flags

	buf := buildRequest(fuser.OpInit, 0xdeadbeefbaadf00d, 0x1122334455667788, 0xc001d00d, 0xc001cafe, 0xc0deba5e, body)

	c := Codec{Layout: LinuxLayout, Minor: fuser.MinVersion.Minor}
	hdr, req, err := c.DecodeRequest(buf)
	require.NoError(t, err)

	require.Equal(t, fuser.OpInit, hdr.Op)
	require.Equal(t, uint64(0xdeadbeefbaadf00d), hdr.RequestID)
	require.Equal(t, fuser.Node(0x1122334455667788), hdr.Node)
	require.Equal(t, uint32(0xc001d00d), hdr.UID)
	require.Equal(t, uint32(0xc001cafe), hdr.GID)
	require.Equal(t, uint32(0xc0deba5e), hdr.PID)

	init, ok := req.(*fuser.InitRequest)
	require.True(t, ok)
	require.Equal(t, fuser.Version{Major: 7, Minor: 8}, init.LatestVersion)
	require.Equal(t, uint32(4096), init.MaxReadahead)
	require.Equal(t, fuser.InitFlags(0), init.Flags)
}

func TestDecodeRequest_Mknod(t *testing.T) {
	// 7.8 shape: no umask word, and the name is not padded.
	var body []byte
	body = binary.NativeEndian.AppendUint32(body, 0o644) // mode
	body = binary.NativeEndian.AppendUint32(body, 0)     // rdev
	body = append(body, "foo.txt\x00"...)

	buf := buildRequest(fuser.OpMknod, 0xdeadbeefbaadf00d, uint64(fuser.RootNode), 0xc001d00d, 0xc001cafe, 0xc0deba5e, body)

	c := Codec{Layout: LinuxLayout, Minor: 8}
	hdr, req, err := c.DecodeRequest(buf)
	require.NoError(t, err)
	require.Equal(t, fuser.OpMknod, hdr.Op)

	mknod, ok := req.(*fuser.MknodRequest)
	require.True(t, ok)
	require.Equal(t, "foo.txt", mknod.Name)
	require.Equal(t, os.FileMode(0o644), mknod.Mode)
	require.Equal(t, uint32(0), mknod.DeviceID)
}

func TestDecodeRequest_MknodUmask(t *testing.T) {
	var body []byte
	body = binary.NativeEndian.AppendUint32(body, 0o644)
	body = binary.NativeEndian.AppendUint32(body, 0)
	body = binary.NativeEndian.AppendUint32(body, 0o022) // umask, 7.12+
	body = binary.NativeEndian.AppendUint32(body, 0)     // padding
	body = append(body, "foo.txt\x00"...)

	buf := buildRequest(fuser.OpMknod, 1, 1, 0, 0, 0, body)

	c := Codec{Layout: LinuxLayout, Minor: 12}
	_, req, err := c.DecodeRequest(buf)
	require.NoError(t, err)

	mknod := req.(*fuser.MknodRequest)
	require.Equal(t, "foo.txt", mknod.Name)
	require.Equal(t, os.FileMode(0o022), mknod.Umask)
}

func TestDecodeRequest_ShortHeader(t *testing.T) {
	c := Codec{Layout: LinuxLayout, Minor: fuser.MinVersion.Minor}
	_, _, err := c.DecodeRequest(make([]byte, InHeaderSize-1))
	require.ErrorIs(t, err, ErrShortReadHeader)
}

func TestDecodeRequest_DeclaredLongerThanBuffer(t *testing.T) {
	buf := buildRequest(fuser.OpLookup, 1, 1, 0, 0, 0, []byte("name\x00"))
	// Corrupt the length field to claim more data than we have.
	binary.NativeEndian.PutUint32(buf[0:4], uint32(len(buf)+10))

	c := Codec{Layout: LinuxLayout, Minor: fuser.MinVersion.Minor}
	_, _, err := c.DecodeRequest(buf)

	var sre *ShortReadError
	require.ErrorAs(t, err, &sre)
	require.Equal(t, uint32(len(buf)+10), sre.Declared)
	require.Equal(t, len(buf), sre.Actual)
}

func TestDecodeRequest_OverAllocatedBuffer(t *testing.T) {
	// Receive buffers are sized for the biggest possible message, so a
	// declared length below the buffer length is the normal case.
	msg := buildRequest(fuser.OpLookup, 7, 1, 0, 0, 0, []byte("name\x00"))
	buf := make([]byte, len(msg)+512)
	copy(buf, msg)

	c := Codec{Layout: LinuxLayout, Minor: fuser.MinVersion.Minor}
	hdr, req, err := c.DecodeRequest(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(7), hdr.RequestID)
	require.Equal(t, &fuser.LookupRequest{Name: "name"}, req)
}

func TestDecodeRequest_UnknownOpcode(t *testing.T) {
	buf := buildRequest(fuser.Op(99), 1, 1, 0, 0, 0, nil)

	c := Codec{Layout: LinuxLayout, Minor: fuser.MinVersion.Minor}
	_, _, err := c.DecodeRequest(buf)

	var uoe *UnknownOpcodeError
	require.ErrorAs(t, err, &uoe)
	require.Equal(t, uint32(99), uoe.Opcode)
}

func TestDecodeRequest_PlatformOps(t *testing.T) {
	buf := buildRequest(fuser.OpSetVolName, 1, 1, 0, 0, 0, []byte("vol\x00"))

	// macOS-only opcodes don't decode under the Linux layout...
	c := Codec{Layout: LinuxLayout, Minor: fuser.MinVersion.Minor}
	_, _, err := c.DecodeRequest(buf)
	var uoe *UnknownOpcodeError
	require.ErrorAs(t, err, &uoe)

	// ...but decode fine under the macOS layout.
	c = Codec{Layout: DarwinLayout, Minor: fuser.MinVersion.Minor}
	_, req, err := c.DecodeRequest(buf)
	require.NoError(t, err)
	require.Equal(t, &fuser.SetVolNameRequest{Name: "vol"}, req)
}

func TestDecodeRequest_TruncatedBody(t *testing.T) {
	// A lookup whose name never terminates exhausts the cursor.
	buf := buildRequest(fuser.OpLookup, 1, 1, 0, 0, 0, []byte("name"))

	c := Codec{Layout: LinuxLayout, Minor: fuser.MinVersion.Minor}
	_, _, err := c.DecodeRequest(buf)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestDecodeRequest_GetattrVersions(t *testing.T) {
	var body []byte
	body = binary.NativeEndian.AppendUint32(body, uint32(fuser.GetAttribFlagHandle))
	body = binary.NativeEndian.AppendUint32(body, 0)
	body = binary.NativeEndian.AppendUint64(body, 42)

	// Before 7.9 getattr has no arguments at all.
	old := Codec{Layout: LinuxLayout, Minor: 8}
	_, req, err := old.DecodeRequest(buildRequest(fuser.OpGetattr, 1, 1, 0, 0, 0, nil))
	require.NoError(t, err)
	require.Equal(t, &fuser.GetattrRequest{}, req)

	modern := Codec{Layout: LinuxLayout, Minor: 9}
	_, req, err = modern.DecodeRequest(buildRequest(fuser.OpGetattr, 1, 1, 0, 0, 0, body))
	require.NoError(t, err)
	require.Equal(t, &fuser.GetattrRequest{Flags: fuser.GetAttribFlagHandle, Handle: 42}, req)
}

func TestDecodeRequest_WriteVersions(t *testing.T) {
	payload := []byte("hello world")

	var old []byte
	old = binary.NativeEndian.AppendUint64(old, 3)                    // fh
	old = binary.NativeEndian.AppendUint64(old, 100)                  // offset
	old = binary.NativeEndian.AppendUint32(old, uint32(len(payload))) // size
	old = binary.NativeEndian.AppendUint32(old, 0)                    // write_flags
	old = append(old, payload...)

	c := Codec{Layout: LinuxLayout, Minor: 8}
	_, req, err := c.DecodeRequest(buildRequest(fuser.OpWrite, 1, 2, 0, 0, 0, old))
	require.NoError(t, err)
	w := req.(*fuser.WriteRequest)
	require.Equal(t, fuser.Handle(3), w.Handle)
	require.Equal(t, uint64(100), w.Offset)
	require.Equal(t, payload, w.Data)

	var modern []byte
	modern = binary.NativeEndian.AppendUint64(modern, 3)
	modern = binary.NativeEndian.AppendUint64(modern, 100)
	modern = binary.NativeEndian.AppendUint32(modern, uint32(len(payload)))
	modern = binary.NativeEndian.AppendUint32(modern, uint32(fuser.WriteLockOwner))
	modern = binary.NativeEndian.AppendUint64(modern, 777) // lock_owner
	modern = binary.NativeEndian.AppendUint32(modern, 0)   // flags
	modern = binary.NativeEndian.AppendUint32(modern, 0)   // padding
	modern = append(modern, payload...)

	c = Codec{Layout: LinuxLayout, Minor: 31}
	_, req, err = c.DecodeRequest(buildRequest(fuser.OpWrite, 1, 2, 0, 0, 0, modern))
	require.NoError(t, err)
	w = req.(*fuser.WriteRequest)
	require.Equal(t, fuser.LockOwner(777), w.LockOwner)
	require.Equal(t, payload, w.Data)
}

func TestDecodeRequest_InitSecondFlagsWord(t *testing.T) {
	var body []byte
	body = binary.NativeEndian.AppendUint32(body, 7)
	body = binary.NativeEndian.AppendUint32(body, 36)
	body = binary.NativeEndian.AppendUint32(body, 4096)
	body = binary.NativeEndian.AppendUint32(body, 0x1)        // flags
	body = binary.NativeEndian.AppendUint32(body, 0x2)        // flags2
	body = append(body, make([]byte, 11*4)...)                // unused

	c := Codec{Layout: LinuxLayout, Minor: fuser.MinVersion.Minor}
	_, req, err := c.DecodeRequest(buildRequest(fuser.OpInit, 1, 0, 0, 0, 0, body))
	require.NoError(t, err)

	init := req.(*fuser.InitRequest)
	require.Equal(t, fuser.InitFlags(0x2_0000_0001), init.Flags)
}

func TestDecodeRequest_BatchForget(t *testing.T) {
	var body []byte
	body = binary.NativeEndian.AppendUint32(body, 2) // count
	body = binary.NativeEndian.AppendUint32(body, 0) // dummy
	body = binary.NativeEndian.AppendUint64(body, 10)
	body = binary.NativeEndian.AppendUint64(body, 3)
	body = binary.NativeEndian.AppendUint64(body, 11)
	body = binary.NativeEndian.AppendUint64(body, 1)

	c := Codec{Layout: LinuxLayout, Minor: 31}
	hdr, req, err := c.DecodeRequest(buildRequest(fuser.OpBatchForget, 1, 0, 0, 0, 0, body))
	require.NoError(t, err)
	require.True(t, hdr.Op.NoReply())

	bf := req.(*fuser.BatchForgetRequest)
	require.Equal(t, []fuser.BatchForgetItem{
		{Node: 10, NumLookups: 3},
		{Node: 11, NumLookups: 1},
	}, bf.Items)
}

func TestDecodeRequest_NoArgumentOps(t *testing.T) {
	c := Codec{Layout: LinuxLayout, Minor: 31}
	for _, op := range []fuser.Op{fuser.OpReadlink, fuser.OpStatfs, fuser.OpDestroy} {
		hdr, req, err := c.DecodeRequest(buildRequest(op, 1, 1, 0, 0, 0, nil))
		require.NoError(t, err, "op %s", op)
		require.Equal(t, op, hdr.Op)
		require.Nil(t, req)
	}
}

func TestDecodeRequest_CorruptedCursorDoesNotPanic(t *testing.T) {
	// A setattr body cut off mid-record must surface as an error, not a
	// panic escaping the codec.
	body := make([]byte, 12)
	buf := buildRequest(fuser.OpSetattr, 1, 1, 0, 0, 0, body)

	c := Codec{Layout: LinuxLayout, Minor: 31}
	require.NotPanics(t, func() {
		_, _, err := c.DecodeRequest(buf)
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrInsufficientData))
	})
}
