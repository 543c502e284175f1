package recovery

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-mastery/internal/attempt"
)

// Chain is a running BLAKE2b-256 digest over the attempts folded into a
// projection. Two projections with equal chains folded the same attempts
// in the same order.
type Chain [blake2b.Size256]byte

// ParseChain decodes a hex digest. The empty string is the empty chain.
func ParseChain(s string) (Chain, error) {
	var c Chain
	if s == "" {
		return c, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(c) {
		return c, fmt.Errorf("recovery: invalid digest %q", s)
	}
	copy(c[:], b)
	return c, nil
}

// Next returns the chain extended by a.
func (c Chain) Next(a attempt.Attempt) Chain {
	buf := make([]byte, 0, len(c)+64+len(a.LearnerID)+len(a.ItemID))
	buf = append(buf, c[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(a.Seq))
	buf = appendString(buf, a.LearnerID)
	buf = appendString(buf, a.ItemID)
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(a.Score))
	buf = binary.BigEndian.AppendUint64(buf, uint64(a.Latency))
	buf = binary.BigEndian.AppendUint64(buf, uint64(a.At.UnixNano()))
	return blake2b.Sum256(buf)
}

func (c Chain) String() string {
	if c == (Chain{}) {
		return ""
	}
	return hex.EncodeToString(c[:])
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
