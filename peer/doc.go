// Package peer
// Author: momentics <momentics@gmail.com>
//
// Peer protection domains the interpreter talks to: a serial driver over
// an io.Reader/io.Writer pair, a timer driver answering protected calls,
// a storage server with pluggable backends, an i2c bus with in-memory
// devices and a framebuffer sink. Each one is a host.Loop-driven
// api.ProtectionDomain and touches shared queues only through the ring
// discipline.
package peer
