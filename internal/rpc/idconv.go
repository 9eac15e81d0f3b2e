package rpc

import "github.com/authlyhq/authly-go/id128"

// EncodeID renders an Id128 as the 17-byte dynamic wire form used by
// every ID field in this package.
func EncodeID(id id128.Id128) []byte {
	arr := id.ToArrayDynamic()
	return arr[:]
}

// DecodeID parses a 17-byte dynamic wire form back into an Id128.
func DecodeID(b []byte) (id128.Id128, error) {
	var arr [17]byte
	copy(arr[:], b)
	return id128.TryFromBytesDynamic(&arr)
}

// EncodeIDs renders a slice of Id128 values as their dynamic wire forms.
func EncodeIDs(ids []id128.Id128) [][]byte {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = EncodeID(id)
	}
	return out
}

// DecodeIDs parses a slice of dynamic wire forms back into Id128 values.
func DecodeIDs(raws [][]byte) ([]id128.Id128, error) {
	out := make([]id128.Id128, len(raws))
	for i, raw := range raws {
		id, err := DecodeID(raw)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
