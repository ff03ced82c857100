package liquidation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"talvault/event"
	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
)

type recordingAppender struct {
	entries []struct {
		kind    event.Kind
		payload interface{}
	}
}

func (r *recordingAppender) Append(kind event.Kind, payload interface{}) (uint64, error) {
	r.entries = append(r.entries, struct {
		kind    event.Kind
		payload interface{}
	}{kind, payload})
	return uint64(len(r.entries) - 1), nil
}

func testPrincipal(t *testing.T, b byte) principal.Principal {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	p, err := principal.FromBytes(raw)
	require.NoError(t, err)
	return p
}

func newTestEngine(t *testing.T, rate int64) (*Engine, *protocolstate.Store, *recordingAppender) {
	t.Helper()
	state := protocolstate.NewFromInit(protocolstate.InitArgs{
		DeveloperPrincipal: testPrincipal(t, 255),
	})
	btcRate := numeric.NewUsdBtc(decimal.NewFromInt(rate))
	state.LastBtcRate = &btcRate
	store := protocolstate.NewStore(state)
	events := &recordingAppender{}
	engine := NewEngine(store, events, nil)
	return engine, store, events
}

func TestCheckVaultsSkipsWhenNoQuote(t *testing.T) {
	state := protocolstate.NewFromInit(protocolstate.InitArgs{DeveloperPrincipal: testPrincipal(t, 255)})
	store := protocolstate.NewStore(state)
	events := &recordingAppender{}
	engine := NewEngine(store, events, nil)

	require.NoError(t, engine.CheckVaults(context.Background()))
	require.Empty(t, events.entries)
}

func TestCheckVaultsLiquidatesIntoPoolWhenLiquiditySufficient(t *testing.T) {
	engine, store, events := newTestEngine(t, 20000)
	owner := testPrincipal(t, 1)
	lp := testPrincipal(t, 2)

	store.Mutate(func(s *protocolstate.State) {
		s.NextAvailableVaultID = 1
		s.VaultIDToVault[0] = protocolstate.Vault{
			VaultID:     0,
			Owner:       owner,
			BorrowedTAL: numeric.TAL(900_000_000_000),
			CkbtcMargin: numeric.CKBTC(1_000_000),
		}
		s.LiquidityPool[lp] = numeric.TAL(1_000_000_000_000)
	})

	require.NoError(t, engine.CheckVaults(context.Background()))
	require.Len(t, events.entries, 1)
	require.Equal(t, event.KindLiquidateVault, events.entries[0].kind)

	store.Read(func(s *protocolstate.State) {
		_, ok := s.VaultIDToVault[0]
		require.False(t, ok)
	})
}

func TestCheckVaultsRedistributesWhenNoLiquidityButHealthyVaultsExist(t *testing.T) {
	engine, store, events := newTestEngine(t, 20000)
	owner := testPrincipal(t, 1)
	healthyOwner := testPrincipal(t, 2)

	store.Mutate(func(s *protocolstate.State) {
		s.VaultIDToVault[0] = protocolstate.Vault{
			VaultID:     0,
			Owner:       owner,
			BorrowedTAL: numeric.TAL(900_000_000_000),
			CkbtcMargin: numeric.CKBTC(1_000_000),
		}
		s.VaultIDToVault[1] = protocolstate.Vault{
			VaultID:     1,
			Owner:       healthyOwner,
			BorrowedTAL: numeric.TAL(100_000_000_000),
			CkbtcMargin: numeric.CKBTC(100_000_000),
		}
	})

	require.NoError(t, engine.CheckVaults(context.Background()))
	require.Len(t, events.entries, 1)
	require.Equal(t, event.KindRedistributeVault, events.entries[0].kind)

	store.Read(func(s *protocolstate.State) {
		_, ok := s.VaultIDToVault[0]
		require.False(t, ok)
	})
}

func TestCheckVaultsSwitchesToReadOnlyWhenProtocolUndercollateralized(t *testing.T) {
	engine, store, events := newTestEngine(t, 20000)
	owner := testPrincipal(t, 1)

	store.Mutate(func(s *protocolstate.State) {
		s.VaultIDToVault[0] = protocolstate.Vault{
			VaultID:     0,
			Owner:       owner,
			BorrowedTAL: numeric.TAL(900_000_000_000),
			CkbtcMargin: numeric.CKBTC(1_000_000),
		}
		s.TotalCollateralRatio = numeric.NewRatio(decimal.NewFromFloat(0.5))
	})

	require.NoError(t, engine.CheckVaults(context.Background()))
	require.Empty(t, events.entries)

	store.Read(func(s *protocolstate.State) {
		require.Equal(t, protocolstate.ModeReadOnly, s.Mode)
	})
}

func TestCheckVaultsRetriesLaterWhenProtocolStillSolvent(t *testing.T) {
	engine, store, events := newTestEngine(t, 20000)
	owner := testPrincipal(t, 1)

	store.Mutate(func(s *protocolstate.State) {
		s.VaultIDToVault[0] = protocolstate.Vault{
			VaultID:     0,
			Owner:       owner,
			BorrowedTAL: numeric.TAL(900_000_000_000),
			CkbtcMargin: numeric.CKBTC(1_000_000),
		}
		s.TotalCollateralRatio = numeric.NewRatio(decimal.NewFromFloat(1.2))
	})

	require.NoError(t, engine.CheckVaults(context.Background()))
	require.Empty(t, events.entries)

	store.Read(func(s *protocolstate.State) {
		require.Equal(t, protocolstate.ModeGeneralAvailability, s.Mode)
	})
}
