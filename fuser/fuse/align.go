package fuse

// align64 rounds numBytes up to the next multiple of 8 bytes. Directory
// entry tuples must start 64-bit aligned for compatibility with 32-bit
// kernels.
func align64(numBytes uint64) uint64 {
	return (numBytes + 7) &^ 7
}
