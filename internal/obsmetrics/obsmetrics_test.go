package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
)

func TestRefreshFromStateSetsVaultCount(t *testing.T) {
	r := New()
	dev, err := principal.FromBytes(make([]byte, 20))
	require.NoError(t, err)
	s := protocolstate.NewFromInit(protocolstate.InitArgs{DeveloperPrincipal: dev})

	owner, err := principal.FromBytes(append(make([]byte, 19), byte(1)))
	require.NoError(t, err)
	s.OpenVault(protocolstate.Vault{VaultID: 0, Owner: owner, CkbtcMargin: 100_000_000})

	rate := numeric.NewUsdBtc(decimal.NewFromInt(20000))
	s.LastBtcRate = &rate

	r.RefreshFromState(s)

	require.Equal(t, float64(1), testutil.ToFloat64(r.VaultCount))
	require.Equal(t, float64(1), testutil.ToFloat64(r.OwnerCount))
	require.Equal(t, float64(1), testutil.ToFloat64(r.TotalCkbtcMargin))
	require.Equal(t, float64(20000), testutil.ToFloat64(r.BtcRateUSD))
	require.Equal(t, float64(20000), testutil.ToFloat64(r.TotalValueLockedUSD))
}
