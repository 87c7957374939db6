// Package fuser holds the data model for the FUSE wire protocol: opcodes,
// request and response headers, typed operation messages, error codes, and
// the capability flags negotiated during the session handshake.
//
// The package is deliberately free of transport concerns. Encoding and
// decoding of the kernel's binary layouts lives in the fuse subpackage, and
// session/dispatch machinery lives in the server subpackage.
//
// fuser targets FUSE protocol 7.40 on Linux (7.19 on macOS) and supports
// kernels back to 7.6.
package fuser

// Request is implemented by protocol request messages, which are sent by the
// kernel to the filesystem driver.
type Request interface {
	fuserRequest()
}

// Response is implemented by protocol response messages, which are sent from
// the filesystem driver after processing a request.
type Response interface {
	fuserResponse()
}
