// ABOUTME: Sentinel errors for packet encoding and decoding
// ABOUTME: Returned by Serialize and Deserialize
package packet

import "errors"

var (
	// ErrTooShort means the input is smaller than the packet header.
	ErrTooShort = errors.New("packet: data shorter than header")

	// ErrBadMagic means the input does not start with the Mix2Go magic.
	ErrBadMagic = errors.New("packet: invalid magic")

	// ErrTooLarge means the payload size overflows the size calculation.
	ErrTooLarge = errors.New("packet: payload too large")
)
