package fuser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testInitRequest() *InitRequest {
	return &InitRequest{
		LatestVersion: Version{Major: 7, Minor: 31},
		MaxReadahead:  128 * 1024,
		Flags:         InitAsyncRead | InitBigWrites | InitMaxPages,
	}
}

func TestKernelConfig_RequestedIntersectsCapable(t *testing.T) {
	// Defaults the kernel doesn't support are dropped rather than sent back.
	cfg := NewKernelConfig(testInitRequest(), InitAsyncRead|InitWritebackCache)
	require.Equal(t, InitAsyncRead, cfg.Requested())
	require.Equal(t, testInitRequest().Flags, cfg.Capable())
}

func TestKernelConfig_AddCapabilities(t *testing.T) {
	cfg := NewKernelConfig(testInitRequest(), 0)

	require.NoError(t, cfg.AddCapabilities(InitBigWrites))
	require.Equal(t, InitBigWrites, cfg.Requested())

	// Asking for an unadvertised capability fails and enables nothing.
	err := cfg.AddCapabilities(InitBigWrites | InitWritebackCache)
	require.Error(t, err)
	require.Equal(t, InitBigWrites, cfg.Requested())
}

func TestKernelConfig_MaxReadahead(t *testing.T) {
	cfg := NewKernelConfig(testInitRequest(), 0)
	require.Equal(t, uint32(128*1024), cfg.MaxReadahead())

	require.NoError(t, cfg.SetMaxReadahead(4096))
	require.Equal(t, uint32(4096), cfg.MaxReadahead())

	// The window can only shrink relative to the kernel's offer.
	require.Error(t, cfg.SetMaxReadahead(256*1024))
	require.Equal(t, uint32(4096), cfg.MaxReadahead())
}

func TestKernelConfig_MaxWrite(t *testing.T) {
	cfg := NewKernelConfig(testInitRequest(), 0)
	require.Equal(t, DefaultMaxWrite, cfg.MaxWrite())

	require.Error(t, cfg.SetMaxWrite(0))
	require.NoError(t, cfg.SetMaxWrite(1024*1024))
	require.Equal(t, uint32(1024*1024), cfg.MaxWrite())
}

func TestKernelConfig_TimeGranularity(t *testing.T) {
	cfg := NewKernelConfig(testInitRequest(), 0)
	require.Equal(t, time.Nanosecond, cfg.TimeGranularity())

	for _, valid := range []time.Duration{time.Nanosecond, time.Microsecond, time.Millisecond, time.Second} {
		require.NoError(t, cfg.SetTimeGranularity(valid), "granularity %v", valid)
		require.Equal(t, valid, cfg.TimeGranularity())
	}
	for _, invalid := range []time.Duration{0, 2 * time.Second, 500 * time.Nanosecond, 3 * time.Millisecond} {
		require.Error(t, cfg.SetTimeGranularity(invalid), "granularity %v", invalid)
	}
}

func TestKernelConfig_CongestionThreshold(t *testing.T) {
	cfg := NewKernelConfig(testInitRequest(), 0)

	// Defaults to three quarters of the background limit.
	require.NoError(t, cfg.SetMaxBackground(16))
	require.Equal(t, uint16(12), cfg.CongestionThreshold())

	require.NoError(t, cfg.SetCongestionThreshold(10))
	require.Equal(t, uint16(10), cfg.CongestionThreshold())

	require.Error(t, cfg.SetCongestionThreshold(17))
	require.Error(t, cfg.SetMaxBackground(0))
}

func TestKernelConfig_MaxPages(t *testing.T) {
	cfg := NewKernelConfig(testInitRequest(), 0)

	require.NoError(t, cfg.SetMaxWrite(4096))
	require.Equal(t, uint16(1), cfg.MaxPages(4096))

	require.NoError(t, cfg.SetMaxWrite(4097))
	require.Equal(t, uint16(2), cfg.MaxPages(4096))

	require.NoError(t, cfg.SetMaxWrite(128*1024))
	require.Equal(t, uint16(32), cfg.MaxPages(4096))
}

func TestKernelConfig_InitResponse(t *testing.T) {
	cfg := NewKernelConfig(testInitRequest(), InitAsyncRead)
	require.NoError(t, cfg.SetMaxWrite(64*1024))
	require.NoError(t, cfg.SetMaxReadahead(32*1024))
	require.NoError(t, cfg.SetTimeGranularity(time.Microsecond))

	resp := cfg.InitResponse(Version{Major: 7, Minor: 31}, 4096)
	require.Equal(t, Version{Major: 7, Minor: 31}, resp.EarliestVersion)
	require.Equal(t, uint32(32*1024), resp.MaxReadahead)
	require.Equal(t, InitAsyncRead, resp.Flags)
	require.Equal(t, DefaultMaxBackground, resp.MaxBackground)
	require.Equal(t, uint16(12), resp.CongestionThreshold)
	require.Equal(t, uint32(64*1024), resp.MaxWrite)
	require.Equal(t, uint32(1000), resp.TimeGran)
	require.Equal(t, uint16(16), resp.MaxPages)
}
