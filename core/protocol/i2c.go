// Package protocol
// Author: momentics <momentics@gmail.com>
//
// I2C bus transfer messages.

package protocol

// I2CRequest writes Write to the device at Addr and then reads ReadLen bytes.
type I2CRequest struct {
	ID      uint64 `cbor:"1,keyasint"`
	Addr    uint16 `cbor:"2,keyasint"`
	Write   []byte `cbor:"3,keyasint,omitempty"`
	ReadLen int    `cbor:"4,keyasint,omitempty"`
}

// I2CResponse carries the bytes read for the request with the same ID.
type I2CResponse struct {
	ID     uint64 `cbor:"1,keyasint"`
	Status int32  `cbor:"2,keyasint"`
	Read   []byte `cbor:"3,keyasint,omitempty"`
}
