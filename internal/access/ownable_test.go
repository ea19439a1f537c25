package access

import (
	"testing"

	"github.com/elys-network/yieldrouter/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnable(t *testing.T) {
	owner := common.HexToAddress("0x1")
	stranger := common.HexToAddress("0x2")

	o, err := NewOwnable(owner)
	require.NoError(t, err)
	assert.Equal(t, owner, o.Owner())
	assert.NoError(t, o.OnlyOwner(owner))
	assert.ErrorIs(t, o.OnlyOwner(stranger), types.ErrUnauthorized)

	_, err = NewOwnable(common.Address{})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestOnly(t *testing.T) {
	ctrl := common.HexToAddress("0xc0")

	assert.NoError(t, Only("controller", ctrl, ctrl))
	assert.ErrorIs(t, Only("controller", ctrl, common.HexToAddress("0xc1")), types.ErrUnauthorized)
	// an unbound role never authorizes anyone, including the zero address
	assert.ErrorIs(t, Only("vault", common.Address{}, common.Address{}), types.ErrUnauthorized)
}
