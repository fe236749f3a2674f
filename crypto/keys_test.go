package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	addr := ModuleAddress("active-pool")
	require.False(t, addr.IsZero())

	encoded := addr.String()
	require.Contains(t, encoded, "cdp1")

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr, decoded)

	fromHex, err := DecodeAddress(addr.Hex())
	require.NoError(t, err)
	require.Equal(t, addr, fromHex)
}

func TestModuleAddressDeterministic(t *testing.T) {
	require.Equal(t, ModuleAddress("gas-pool"), ModuleAddress(" gas-pool "))
	require.NotEqual(t, ModuleAddress("gas-pool"), ModuleAddress("surplus-pool"))
}

func TestDecodeAddressRejectsMalformedInput(t *testing.T) {
	_, err := DecodeAddress("")
	require.Error(t, err)

	_, err = DecodeAddress("0x1234")
	require.Error(t, err)

	_, err = DecodeAddress("not-an-address")
	require.Error(t, err)
}

func TestUnmarshalText(t *testing.T) {
	addr := ModuleAddress("borrower")
	var out Address
	require.NoError(t, out.UnmarshalText([]byte(addr.String())))
	require.Equal(t, addr, out)
}
