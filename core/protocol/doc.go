// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Wire messages exchanged with the storage server and the i2c bus driver
// through shared queue buffers. Each descriptor on a command or completion
// ring points at exactly one CBOR-encoded message.

package protocol
