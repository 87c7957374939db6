package server

import (
	"testing"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/cberner/fuser-sub000/fuser/fuse"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func testReplySender(ch *fakeChannel) *replySender {
	codec := fuse.Codec{Layout: fuse.LinuxLayout, Minor: 31}
	hdr := fuser.RequestHeader{Op: fuser.OpLookup, RequestID: 7}
	return newReplySender(log.NewNopLogger(), ch, codec, hdr)
}

func TestReplySender_SendsOnce(t *testing.T) {
	ch := newFakeChannel()
	rs := testReplySender(ch)

	require.NoError(t, rs.Send(0, nil))
	require.Error(t, rs.Send(fuser.ErrorIO, nil))

	code, unique, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(0), code)
	require.Equal(t, uint64(7), unique)
	require.Empty(t, ch.replies)
}

func TestReplySender_FinishBackstop(t *testing.T) {
	ch := newFakeChannel()
	rs := testReplySender(ch)

	// Nothing was sent for the request; Finish answers EIO so the kernel
	// isn't left waiting on the id.
	rs.Finish()

	code, unique, payload := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x05), code)
	require.Equal(t, uint64(7), unique)
	require.Empty(t, payload)

	rs.Finish()
	require.Empty(t, ch.replies)
}

func TestReplySender_FinishAfterSend(t *testing.T) {
	ch := newFakeChannel()
	rs := testReplySender(ch)

	require.NoError(t, rs.Send(fuser.ErrorNotExist, nil))
	rs.Finish()

	code, _, _ := parseReply(t, awaitReply(t, ch))
	require.Equal(t, int32(-0x02), code)
	require.Empty(t, ch.replies)
}
