/*

Canonical token pair key. A pair always canonicalizes to the same key
regardless of the order the caller passes the two assets in, by sorting the
addresses ascending. This is what keeps the registry at one entry per pair.

*/

package types

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pair is the canonical (token0, token1) key for a liquidity pair.
// Token0 is always the numerically lower address.
type Pair struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
}

// NewPair canonicalizes two token addresses into a Pair.
func NewPair(a, b common.Address) Pair {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return Pair{Token0: a, Token1: b}
}

// Contains reports whether token is one of the pair's two assets.
func (p Pair) Contains(token common.Address) bool {
	return p.Token0 == token || p.Token1 == token
}

// Counterpart returns the other asset of the pair. The token must be one of
// the pair's assets.
func (p Pair) Counterpart(token common.Address) common.Address {
	if p.Token0 == token {
		return p.Token1
	}
	return p.Token0
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Token0.Hex(), p.Token1.Hex())
}
