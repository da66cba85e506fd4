package vote

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/solana/binary"
)

const (
	AccountSize = (4 + // yes
		4 + // abstained
		4) // no
)

var (
	ErrInvalidAccountSize = errors.New("invalid vote account size")
	ErrCounterOutOfRange  = errors.New("vote counter out of range")
)

// Account is the tally stored in a vote account.
type Account struct {
	Yes       uint32
	Abstained uint32
	No        uint32
}

// NewAccount returns an Account with the provided counts, each of which must
// fit in an unsigned 32 bit integer.
func NewAccount(yes, abstained, no int64) (*Account, error) {
	counts := make([]uint32, 3)
	for i, v := range []int64{yes, abstained, no} {
		if v < 0 || v > math.MaxUint32 {
			return nil, errors.Wrapf(ErrCounterOutOfRange, "%d", v)
		}
		counts[i] = uint32(v)
	}

	return &Account{
		Yes:       counts[0],
		Abstained: counts[1],
		No:        counts[2],
	}, nil
}

// Size is the number of bytes a serialized Account occupies, and therefore the
// space a vote account must be allocated with.
func Size() uint64 {
	return uint64(len((&Account{}).Marshal()))
}

func (obj *Account) Marshal() []byte {
	return binary.NewEncoder(AccountSize).
		Uint32(obj.Yes).
		Uint32(obj.Abstained).
		Uint32(obj.No).
		Bytes()
}

func (obj *Account) Unmarshal(data []byte) error {
	if len(data) < AccountSize {
		return ErrInvalidAccountSize
	}

	d := binary.NewDecoder(data)
	obj.Yes = d.Uint32()
	obj.Abstained = d.Uint32()
	obj.No = d.Uint32()

	return d.Err()
}

func (obj *Account) String() string {
	return fmt.Sprintf("yes:%d, abstained:%d, no:%d", obj.Yes, obj.Abstained, obj.No)
}
