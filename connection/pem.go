package connection

import "encoding/pem"

// pemDecodeFirst returns the DER bytes of the first CERTIFICATE block in
// data, or nil if there is none.
func pemDecodeFirst(data []byte) ([]byte, []byte) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, nil
		}
		if block.Type == "CERTIFICATE" {
			return block.Bytes, rest
		}
	}
}
