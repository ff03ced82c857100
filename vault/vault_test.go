package vault

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"talvault/event"
	"talvault/guard"
	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
	"talvault/protoerr"
	"talvault/transfer"
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

type fakeLedger struct {
	nextBlock uint64
	fail      error
}

func (f *fakeLedger) Transfer(_ context.Context, _ principal.Principal, _ uint64, _ uint64) (uint64, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	f.nextBlock++
	return f.nextBlock, nil
}

func (f *fakeLedger) TransferFrom(ctx context.Context, to principal.Principal, amount uint64, fee uint64) (uint64, error) {
	return f.Transfer(ctx, to, amount, fee)
}

func testPrincipal(t *testing.T, b byte) principal.Principal {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	p, err := principal.FromBytes(raw)
	require.NoError(t, err)
	return p
}

func newTestService(t *testing.T, now uint64) (*Service, *protocolstate.Store, *recordingAppender) {
	t.Helper()
	state := protocolstate.NewFromInit(protocolstate.InitArgs{
		DeveloperPrincipal: testPrincipal(t, 255),
	})
	rate := numeric.NewUsdBtc(decimal.NewFromInt(20000))
	state.LastBtcRate = &rate
	ts := now
	state.LastBtcTimestamp = &ts

	store := protocolstate.NewStore(state)
	exec := transfer.NewExecutor(&fakeLedger{}, &fakeLedger{}, numeric.CKBTC(10))
	events := &recordingAppender{}
	guards := guard.NewPrincipalGuards(100)
	svc := NewService(store, exec, events, guards, func() uint64 { return now }, nil)
	return svc, store, events
}

func TestOpenVaultRejectsAnonymous(t *testing.T) {
	svc, _, _ := newTestService(t, 1_000_000_000)
	_, err := svc.OpenVault(context.Background(), principal.Anonymous, numeric.CKBTC(1_000_000))
	require.ErrorIs(t, err, protoerr.ErrAnonymousCallerNotAllowed)
}

func TestOpenVaultRejectsLowAmount(t *testing.T) {
	svc, _, _ := newTestService(t, 1_000_000_000)
	owner := testPrincipal(t, 1)
	_, err := svc.OpenVault(context.Background(), owner, numeric.CKBTC(1))
	require.Error(t, err)
}

func TestOpenVaultSucceeds(t *testing.T) {
	svc, store, events := newTestService(t, 1_000_000_000)
	owner := testPrincipal(t, 1)

	res, err := svc.OpenVault(context.Background(), owner, numeric.CKBTC(100_000_000))
	require.NoError(t, err)
	require.Equal(t, protocolstate.VaultID(0), res.VaultID)
	require.Len(t, events.entries, 1)

	store.Read(func(s *protocolstate.State) {
		v, ok := s.VaultIDToVault[0]
		require.True(t, ok)
		require.Equal(t, owner, v.Owner)
		require.Equal(t, numeric.TAL(0), v.BorrowedTAL)
	})
}

func TestOpenVaultRejectedInReadOnly(t *testing.T) {
	svc, store, _ := newTestService(t, 1_000_000_000)
	store.Mutate(func(s *protocolstate.State) { s.Mode = protocolstate.ModeReadOnly })

	owner := testPrincipal(t, 1)
	_, err := svc.OpenVault(context.Background(), owner, numeric.CKBTC(100_000_000))
	require.Error(t, err)
}

func TestOpenVaultRejectsStaleOracle(t *testing.T) {
	svc, store, _ := newTestService(t, 100*3600*1_000_000_000)
	store.Mutate(func(s *protocolstate.State) {
		ts := uint64(0)
		s.LastBtcTimestamp = &ts
	})

	owner := testPrincipal(t, 1)
	_, err := svc.OpenVault(context.Background(), owner, numeric.CKBTC(100_000_000))
	require.Error(t, err)
}

func TestBorrowFromVaultCreditsFeeAfterMutatingDebt(t *testing.T) {
	svc, store, events := newTestService(t, 1_000_000_000)
	// newTestService inits with fee_e8s 0, i.e. a zero borrow fee; set a
	// non-zero fee so there is something to credit.
	store.Mutate(func(s *protocolstate.State) { s.Fee = protocolstate.DefaultBorrowFee() })
	owner := testPrincipal(t, 1)

	_, err := svc.OpenVault(context.Background(), owner, numeric.CKBTC(300_000_000))
	require.NoError(t, err)

	_, err = svc.BorrowFromVault(context.Background(), owner, 0, numeric.TAL(1_000_000_000))
	require.NoError(t, err)
	require.Len(t, events.entries, 2)

	store.Read(func(s *protocolstate.State) {
		v := s.VaultIDToVault[0]
		require.Equal(t, numeric.TAL(1_000_000_000), v.BorrowedTAL)
		require.True(t, s.TotalProvidedLiquidity() > 0)
	})
}

func TestBorrowFromVaultRejectsNonOwner(t *testing.T) {
	svc, _, _ := newTestService(t, 1_000_000_000)
	owner := testPrincipal(t, 1)
	other := testPrincipal(t, 2)

	_, err := svc.OpenVault(context.Background(), owner, numeric.CKBTC(300_000_000))
	require.NoError(t, err)

	_, err = svc.BorrowFromVault(context.Background(), other, 0, numeric.TAL(1_000_000_000))
	require.Error(t, err)
}

func TestCloseVaultZeroDebtAllowedInReadOnly(t *testing.T) {
	svc, store, _ := newTestService(t, 1_000_000_000)
	owner := testPrincipal(t, 1)

	_, err := svc.OpenVault(context.Background(), owner, numeric.CKBTC(100_000_000))
	require.NoError(t, err)

	store.Mutate(func(s *protocolstate.State) { s.Mode = protocolstate.ModeReadOnly })

	blockIndex, err := svc.CloseVault(context.Background(), owner, 0)
	require.NoError(t, err)
	require.Nil(t, blockIndex)

	store.Read(func(s *protocolstate.State) {
		_, ok := s.VaultIDToVault[0]
		require.False(t, ok)
		_, ok = s.PendingMarginTransfers[0]
		require.True(t, ok)
	})
}

func TestRedeemCkbtcRejectedInReadOnly(t *testing.T) {
	svc, store, _ := newTestService(t, 1_000_000_000)
	store.Mutate(func(s *protocolstate.State) { s.Mode = protocolstate.ModeReadOnly })

	caller := testPrincipal(t, 1)
	_, err := svc.RedeemCkbtc(context.Background(), caller, numeric.TAL(10_000_000_000))
	require.Error(t, err)
}
