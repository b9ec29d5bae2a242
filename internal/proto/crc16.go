package proto

// CRCSeed is the seed used for packet integrity.
const CRCSeed uint16 = 0xffff

const crcPolyReflected = 0x8408

// CRC16LE: reflected CCITT CRC, seed inverted on entry and result inverted on
// exit (radio ROM crc16_le). Seed 0xffff here, result stored little-endian.
func CRC16LE(seed uint16, b []byte) uint16 {
	return ^crc16Update(^seed, b)
}

func crc16Update(crc uint16, b []byte) uint16 {
	for _, c := range b {
		crc ^= uint16(c)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ crcPolyReflected
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// packetCRC computes the checksum over b as if the crc field were zero.
func packetCRC(b []byte) uint16 {
	crc := crc16Update(^CRCSeed, b[:offCRC])
	crc = crc16Update(crc, []byte{0, 0})
	crc = crc16Update(crc, b[offToken:])
	return ^crc
}
