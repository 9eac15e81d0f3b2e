package policy

import (
	"fmt"
	"math/big"
)

// encodeVarint128 encodes a 16-byte big-endian payload as an unsigned
// LEB128 varint, matching the wire form the bytecode spec calls
// "varint128".
func encodeVarint128(raw [16]byte) []byte {
	v := new(big.Int).SetBytes(raw[:])
	zero := big.NewInt(0)
	mask := big.NewInt(0x7f)
	var out []byte
	for {
		b := new(big.Int).And(v, mask)
		v.Rsh(v, 7)
		by := byte(b.Uint64())
		if v.Cmp(zero) != 0 {
			by |= 0x80
		}
		out = append(out, by)
		if v.Cmp(zero) == 0 {
			break
		}
	}
	return out
}

// decodeVarint128 decodes a varint128 and returns the 16-byte big-endian
// payload it represents, along with the unconsumed tail.
func decodeVarint128(buf []byte) (raw [16]byte, rest []byte, err error) {
	v := big.NewInt(0)
	shift := uint(0)
	for i, b := range buf {
		chunk := new(big.Int).Lsh(big.NewInt(int64(b&0x7f)), shift)
		v.Or(v, chunk)
		if b&0x80 == 0 {
			bytes := v.Bytes()
			if len(bytes) > 16 {
				return raw, nil, fmt.Errorf("%w: varint128 overflows 128 bits", ErrProgram)
			}
			copy(raw[16-len(bytes):], bytes)
			return raw, buf[i+1:], nil
		}
		shift += 7
	}
	return raw, nil, fmt.Errorf("%w: truncated varint128", ErrProgram)
}
