package server

import (
	"errors"
	"fmt"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/go-kit/log"
	"golang.org/x/sys/unix"
)

// Notifier sends unsolicited messages from the filesystem to the kernel:
// poll wakeups, cache invalidations, page cache stores, and deletions.
//
// Every method takes an optional done channel. When done is nil the call is
// synchronous and returns the delivery outcome. When done is non-nil the
// call returns immediately and the outcome is sent to done instead; the
// channel should be buffered or have a reader.
//
// Notifiers are safe for concurrent use from any goroutine, including
// handler callbacks.
type Notifier struct {
	log     log.Logger
	session *Session
}

// Notifier returns a Notifier bound to the session.
func (s *Session) Notifier() *Notifier {
	return &Notifier{log: s.log, session: s}
}

// PollWakeup tells the kernel that the poll handle registered by an earlier
// poll request has pending events.
func (n *Notifier) PollWakeup(pollHandle uint64, done chan<- error) error {
	return n.send(&fuser.PollWakeupNotification{PollHandle: pollHandle}, done, false)
}

// InvalEntry invalidates the kernel's cached lookup of name under parent.
// An entry the kernel no longer caches counts as success.
func (n *Notifier) InvalEntry(parent fuser.Node, name string, done chan<- error) error {
	return n.send(&fuser.InvalEntryNotification{Parent: parent, Name: name}, done, true)
}

// InvalInode invalidates cached attributes of node and its cached data in
// the given byte range. A negative length invalidates to the end of the
// file. An inode the kernel no longer caches counts as success.
func (n *Notifier) InvalInode(node fuser.Node, offset, length int64, done chan<- error) error {
	return n.send(&fuser.InvalInodeNotification{Node: node, Offset: offset, Length: length}, done, true)
}

// Store pushes data into the kernel's page cache for node at offset.
func (n *Notifier) Store(node fuser.Node, offset uint64, data []byte, done chan<- error) error {
	return n.send(&fuser.StoreNotification{Node: node, Offset: offset, Data: data}, done, false)
}

// Delete invalidates the entry like InvalEntry and additionally tells the
// kernel the child inode behind it is gone. An entry the kernel no longer
// caches counts as success.
func (n *Notifier) Delete(parent, child fuser.Node, name string, done chan<- error) error {
	return n.send(&fuser.DeleteNotification{Parent: parent, Child: child, Name: name}, done, true)
}

func (n *Notifier) send(msg fuser.Notification, done chan<- error, ignoreNotExist bool) error {
	deliver := func() error {
		if n.session.State() != SessionReady {
			return fmt.Errorf("session not ready for notifications")
		}

		bufs, err := n.session.codec().EncodeNotify(msg)
		if err != nil {
			return err
		}
		_, err = n.session.ch.Writev(bufs...)
		if ignoreNotExist && errors.Is(err, unix.ENOENT) {
			// The kernel had already dropped the entry; the cache is in the
			// state the caller asked for.
			err = nil
		}
		return err
	}

	if done != nil {
		go func() { done <- deliver() }()
		return nil
	}
	return deliver()
}
