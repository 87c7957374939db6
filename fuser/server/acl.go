package server

import "github.com/cberner/fuser-sub000/fuser"

// SessionACL restricts which users may issue operations against a session.
// The default, ACLAll, performs no filtering. Restricted modes still admit
// the small set of operations the kernel issues on behalf of internal tasks
// with no meaningful credentials (writeback, cache eviction, unmount).
type SessionACL int

const (
	// ACLAll allows requests from every user.
	ACLAll SessionACL = iota

	// ACLRootAndOwner allows requests from root and the session owner.
	ACLRootAndOwner

	// ACLOwner allows requests from the session owner only.
	ACLOwner
)

// kernelIssuedOps are operations the kernel may issue with credentials that
// do not map to the user driving the filesystem. They bypass ACL filtering;
// everything else from a disallowed uid is answered with EACCES.
var kernelIssuedOps = map[fuser.Op]bool{
	fuser.OpInit:        true,
	fuser.OpDestroy:     true,
	fuser.OpForget:      true,
	fuser.OpBatchForget: true,
	fuser.OpRead:        true,
	fuser.OpWrite:       true,
	fuser.OpFlush:       true,
	fuser.OpRelease:     true,
	fuser.OpReleasedir:  true,
	fuser.OpFsync:       true,
	fuser.OpFsyncDir:    true,
	fuser.OpReaddir:     true,
	fuser.OpReaddirplus: true,
}

// allows reports whether a request from hdr.UID may proceed under acl when
// the session is owned by owner.
func (acl SessionACL) allows(hdr *fuser.RequestHeader, owner uint32) bool {
	switch acl {
	case ACLRootAndOwner:
		if hdr.UID == owner || hdr.UID == 0 {
			return true
		}
	case ACLOwner:
		if hdr.UID == owner {
			return true
		}
	default:
		return true
	}
	return kernelIssuedOps[hdr.Op]
}
