// Package encoding provides Reed-Solomon error correction for key file fields.
//
// Every key file field is stored with triple redundancy so a key file with
// a few flipped bits still opens:
//
//   - RS5 (5->15):   parameter block (version, argon2 passes/threads/memory)
//   - RS16 (16->48): argon2 salt
//   - RS64 (64->192): SHA3-512 hash of the derived key
//
// The encoding ratio determines fault tolerance: an RSn codec can correct up
// to n byte errors per 3n-byte block.
package encoding

import (
	"errors"
	"fmt"

	"github.com/Picocrypt/infectious"
)

// Codecs holds pre-initialized Reed-Solomon Forward Error Correction (FEC) codecs.
// Codecs are created once and reused.
type Codecs struct {
	RS5  *infectious.FEC // 5 data -> 15 total bytes
	RS16 *infectious.FEC // 16 data -> 48 total bytes
	RS64 *infectious.FEC // 64 data -> 192 total bytes
}

// NewCodecs initializes the key file codecs.
func NewCodecs() (*Codecs, error) {
	rs5, err1 := infectious.NewFEC(5, 15)
	rs16, err2 := infectious.NewFEC(16, 48)
	rs64, err3 := infectious.NewFEC(64, 192)

	if err1 != nil || err2 != nil || err3 != nil {
		return nil, errors.New("failed to initialize Reed-Solomon codecs")
	}

	return &Codecs{RS5: rs5, RS16: rs16, RS64: rs64}, nil
}

// Encode applies Reed-Solomon encoding to data using the specified codec.
// The input data length must match the codec's Required() size.
func Encode(rs *infectious.FEC, data []byte) ([]byte, error) {
	if len(data) != rs.Required() {
		return nil, fmt.Errorf("rs encode: got %d bytes, codec requires %d", len(data), rs.Required())
	}
	res := make([]byte, rs.Total())
	if err := rs.Encode(data, func(s infectious.Share) {
		res[s.Number] = s.Data[0]
	}); err != nil {
		return nil, fmt.Errorf("rs encode: %w", err)
	}
	return res, nil
}

// Decode attempts to decode and repair Reed-Solomon encoded data.
//
// On unrecoverable corruption the first Required() bytes are returned
// together with the error, so callers may still inspect them.
func Decode(rs *infectious.FEC, data []byte) ([]byte, error) {
	if len(data) != rs.Total() {
		return nil, fmt.Errorf("rs decode: got %d bytes, codec expects %d", len(data), rs.Total())
	}

	tmp := make([]infectious.Share, rs.Total())
	for i := range rs.Total() {
		tmp[i].Number = i
		tmp[i].Data = append(tmp[i].Data, data[i])
	}
	res, err := rs.Decode(nil, tmp)
	if err != nil {
		return data[:rs.Required()], err
	}
	return res, nil
}
