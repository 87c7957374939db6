package fuser

import (
	"fmt"
	"time"
)

// Config defaults used until the filesystem's init hook overrides them.
const (
	// DefaultMaxWrite is the largest single write the driver accepts. Linux
	// caps the value at 128kB since 4.2.0.
	DefaultMaxWrite uint32 = 128 * 1024

	// DefaultMaxBackground is the number of background requests the kernel
	// may keep outstanding.
	DefaultMaxBackground uint16 = 16
)

// KernelConfig carries the capability negotiation between the kernel and the
// filesystem during the init handshake. The kernel advertises a capability
// bitset; the filesystem's init hook may request optional capabilities and
// tune transfer limits before the init reply is sent.
//
// Requesting a capability the kernel did not advertise fails loudly rather
// than being silently dropped.
type KernelConfig struct {
	capable   InitFlags
	requested InitFlags

	kernelMaxReadahead uint32
	maxReadahead       uint32
	maxBackground      uint16
	// 0 means "derive from maxBackground".
	congestionThreshold uint16
	maxWrite            uint32
	timeGran            time.Duration
}

// NewKernelConfig builds a KernelConfig from the kernel's init request and
// the driver's default capability set.
func NewKernelConfig(init *InitRequest, requested InitFlags) *KernelConfig {
	return &KernelConfig{
		capable:   init.Flags,
		requested: requested & init.Flags,

		kernelMaxReadahead: init.MaxReadahead,
		maxReadahead:       init.MaxReadahead,
		maxBackground:      DefaultMaxBackground,
		maxWrite:           DefaultMaxWrite,
		timeGran:           time.Nanosecond,
	}
}

// Capable returns the capability bitset advertised by the kernel.
func (c *KernelConfig) Capable() InitFlags { return c.capable }

// Requested returns the capabilities that will be enabled in the init reply.
func (c *KernelConfig) Requested() InitFlags { return c.requested }

// AddCapabilities requests optional capabilities. It fails if any requested
// capability is absent from the kernel's advertised set; in that case no
// capability from flags is enabled.
func (c *KernelConfig) AddCapabilities(flags InitFlags) error {
	if missing := flags &^ c.capable; missing != 0 {
		return fmt.Errorf("kernel does not support capabilities %#x", uint64(missing))
	}
	c.requested |= flags
	return nil
}

// SetMaxWrite caps the size of a single write request.
func (c *KernelConfig) SetMaxWrite(maxWrite uint32) error {
	if maxWrite == 0 {
		return fmt.Errorf("max write must be nonzero")
	}
	c.maxWrite = maxWrite
	return nil
}

// MaxWrite returns the negotiated maximum write size.
func (c *KernelConfig) MaxWrite() uint32 { return c.maxWrite }

// SetMaxReadahead lowers the readahead window. It cannot exceed the value
// the kernel offered.
func (c *KernelConfig) SetMaxReadahead(maxReadahead uint32) error {
	if maxReadahead > c.kernelMaxReadahead {
		return fmt.Errorf("max readahead %d exceeds kernel offer %d", maxReadahead, c.kernelMaxReadahead)
	}
	c.maxReadahead = maxReadahead
	return nil
}

// MaxReadahead returns the negotiated readahead window.
func (c *KernelConfig) MaxReadahead() uint32 { return c.maxReadahead }

// SetTimeGranularity sets the timestamp granularity the filesystem stores.
// The granularity must be a power of 10 between 1ns and 1s.
func (c *KernelConfig) SetTimeGranularity(g time.Duration) error {
	if g < time.Nanosecond || g > time.Second {
		return fmt.Errorf("time granularity %v out of range", g)
	}
	for n := g.Nanoseconds(); n > 1; n /= 10 {
		if n%10 != 0 {
			return fmt.Errorf("time granularity %v is not a power of 10", g)
		}
	}
	c.timeGran = g
	return nil
}

// TimeGranularity returns the configured timestamp granularity.
func (c *KernelConfig) TimeGranularity() time.Duration { return c.timeGran }

// SetMaxBackground sets the number of background requests the kernel may
// keep outstanding.
func (c *KernelConfig) SetMaxBackground(max uint16) error {
	if max == 0 {
		return fmt.Errorf("max background must be nonzero")
	}
	c.maxBackground = max
	return nil
}

// MaxBackground returns the configured background request limit.
func (c *KernelConfig) MaxBackground() uint16 { return c.maxBackground }

// SetCongestionThreshold sets the number of outstanding background requests
// at which the kernel considers the filesystem congested. It cannot exceed
// the background limit.
func (c *KernelConfig) SetCongestionThreshold(threshold uint16) error {
	if threshold > c.maxBackground {
		return fmt.Errorf("congestion threshold %d exceeds max background %d", threshold, c.maxBackground)
	}
	c.congestionThreshold = threshold
	return nil
}

// CongestionThreshold returns the configured congestion threshold,
// defaulting to three quarters of the background limit.
func (c *KernelConfig) CongestionThreshold() uint16 {
	if c.congestionThreshold == 0 {
		return c.maxBackground * 3 / 4
	}
	return c.congestionThreshold
}

// MaxPages derives the page count the kernel needs to honor MaxWrite.
func (c *KernelConfig) MaxPages(pageSize int) uint16 {
	pages := (uint64(c.maxWrite) - 1) / uint64(pageSize)
	return uint16(pages + 1)
}

// InitResponse builds the init reply carrying the negotiated settings.
// version is the protocol version the session agreed to speak.
func (c *KernelConfig) InitResponse(version Version, pageSize int) *InitResponse {
	return &InitResponse{
		EarliestVersion:     version,
		MaxReadahead:        c.maxReadahead,
		Flags:               c.requested,
		MaxBackground:       c.maxBackground,
		CongestionThreshold: c.CongestionThreshold(),
		MaxWrite:            c.maxWrite,
		TimeGran:            uint32(c.timeGran.Nanoseconds()),
		MaxPages:            c.MaxPages(pageSize),
	}
}
