package access

import (
	"errors"
	"fmt"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Ownable records the single address allowed to administer a component.
// Callers identify themselves explicitly on every gated call.
type Ownable struct {
	owner common.Address
}

// NewOwnable binds owner. The zero address is rejected.
func NewOwnable(owner common.Address) (Ownable, error) {
	if owner == (common.Address{}) {
		return Ownable{}, errors.Join(types.ErrInvalidArgument, errors.New("owner cannot be the zero address"))
	}
	return Ownable{owner: owner}, nil
}

// Owner returns the administering address.
func (o Ownable) Owner() common.Address {
	return o.owner
}

// OnlyOwner fails with ErrUnauthorized unless caller is the owner.
func (o Ownable) OnlyOwner(caller common.Address) error {
	if caller != o.owner {
		return fmt.Errorf("%w: caller %s is not the owner", types.ErrUnauthorized, caller.Hex())
	}
	return nil
}

// Only fails with ErrUnauthorized unless caller equals expected. role names
// the expected party in the error.
func Only(role string, expected, caller common.Address) error {
	if expected == (common.Address{}) || caller != expected {
		return fmt.Errorf("%w: caller %s is not the %s", types.ErrUnauthorized, caller.Hex(), role)
	}
	return nil
}
