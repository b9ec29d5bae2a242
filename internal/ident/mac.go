// Package ident: 6-byte radio link identities (MAC) and the gateway's own identity.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Len is the identity size on the radio link.
const Len = 6

// MAC identifies one radio endpoint.
type MAC [Len]byte

// Broadcast is the all-ones identity; never stored as a peer.
var Broadcast = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Zero is what a malformed MAC string decodes to. Never a valid target.
var Zero MAC

// Parse decodes "XX:XX:XX:XX:XX:XX" (hex, any case). Malformed input -> Zero.
func Parse(s string) MAC {
	var m MAC
	if len(s) != Len*3-1 {
		return Zero
	}
	for i := 0; i < Len; i++ {
		if i > 0 && s[i*3-1] != ':' {
			return Zero
		}
		if _, err := hex.Decode(m[i:i+1], []byte(s[i*3:i*3+2])); err != nil {
			return Zero
		}
	}
	return m
}

// FromBytes copies b into a MAC; false if b is not exactly Len bytes.
func FromBytes(b []byte) (MAC, bool) {
	var m MAC
	if len(b) != Len {
		return m, false
	}
	copy(m[:], b)
	return m, true
}

// String formats m as upper-case colon hex.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (m MAC) IsBroadcast() bool { return m == Broadcast }

func (m MAC) IsZero() bool { return m == Zero }

// Random returns a locally administered unicast MAC.
func Random() (MAC, error) {
	var m MAC
	if _, err := rand.Read(m[:]); err != nil {
		return Zero, err
	}
	m[0] = (m[0] | 0x02) &^ 0x01
	return m, nil
}
