package liquiditypool

import (
	"context"
	"testing"

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

func newTestService(t *testing.T) (*Service, *protocolstate.Store, *recordingAppender) {
	t.Helper()
	state := protocolstate.NewFromInit(protocolstate.InitArgs{
		DeveloperPrincipal: testPrincipal(t, 255),
	})
	store := protocolstate.NewStore(state)
	exec := transfer.NewExecutor(&fakeLedger{}, &fakeLedger{}, numeric.CKBTC(10))
	events := &recordingAppender{}
	guards := guard.NewPrincipalGuards(100)
	svc := NewService(store, exec, events, guards, nil)
	return svc, store, events
}

func TestProvideLiquidityRejectsAnonymous(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ProvideLiquidity(context.Background(), principal.Anonymous, numeric.TAL(MinLiquidityAmount))
	require.ErrorIs(t, err, protoerr.ErrAnonymousCallerNotAllowed)
}

func TestProvideLiquidityRejectsLowAmount(t *testing.T) {
	svc, _, _ := newTestService(t)
	caller := testPrincipal(t, 1)
	_, err := svc.ProvideLiquidity(context.Background(), caller, numeric.TAL(1))
	require.Error(t, err)
}

func TestProvideLiquiditySucceeds(t *testing.T) {
	svc, store, events := newTestService(t)
	caller := testPrincipal(t, 1)

	_, err := svc.ProvideLiquidity(context.Background(), caller, numeric.TAL(MinLiquidityAmount))
	require.NoError(t, err)
	require.Len(t, events.entries, 1)

	store.Read(func(s *protocolstate.State) {
		require.Equal(t, numeric.TAL(MinLiquidityAmount), s.GetProvidedLiquidity(caller))
	})
}

func TestProvideLiquidityRejectedInReadOnly(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.Mutate(func(s *protocolstate.State) { s.Mode = protocolstate.ModeReadOnly })

	caller := testPrincipal(t, 1)
	_, err := svc.ProvideLiquidity(context.Background(), caller, numeric.TAL(MinLiquidityAmount))
	require.Error(t, err)
}

func TestWithdrawLiquidityRejectsOverBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	caller := testPrincipal(t, 1)

	_, err := svc.ProvideLiquidity(context.Background(), caller, numeric.TAL(MinLiquidityAmount))
	require.NoError(t, err)

	_, err = svc.WithdrawLiquidity(context.Background(), caller, numeric.TAL(MinLiquidityAmount*2))
	require.Error(t, err)
}

func TestWithdrawLiquiditySucceeds(t *testing.T) {
	svc, store, events := newTestService(t)
	caller := testPrincipal(t, 1)

	_, err := svc.ProvideLiquidity(context.Background(), caller, numeric.TAL(MinLiquidityAmount))
	require.NoError(t, err)

	_, err = svc.WithdrawLiquidity(context.Background(), caller, numeric.TAL(MinLiquidityAmount))
	require.NoError(t, err)
	require.Len(t, events.entries, 2)

	store.Read(func(s *protocolstate.State) {
		require.Equal(t, numeric.TAL(0), s.GetProvidedLiquidity(caller))
	})
}

func TestClaimLiquidityReturnsRejectsWhenNothingPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	caller := testPrincipal(t, 1)

	_, err := svc.ClaimLiquidityReturns(context.Background(), caller)
	require.Error(t, err)
}

func TestClaimLiquidityReturnsAllowedInReadOnly(t *testing.T) {
	svc, store, events := newTestService(t)
	caller := testPrincipal(t, 1)

	store.Mutate(func(s *protocolstate.State) {
		s.LiquidityReturns[caller] = numeric.CKBTC(500_000)
		s.Mode = protocolstate.ModeReadOnly
	})

	_, err := svc.ClaimLiquidityReturns(context.Background(), caller)
	require.NoError(t, err)
	require.Len(t, events.entries, 1)

	store.Read(func(s *protocolstate.State) {
		require.Equal(t, numeric.CKBTC(0), s.GetLiquidityReturnsOf(caller))
	})
}
