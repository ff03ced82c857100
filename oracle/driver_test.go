package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"talvault/event"
	"talvault/liquidation"
	"talvault/numeric"
	"talvault/principal"
	"talvault/protocolstate"
)

type recordingAppender struct {
	count uint64
}

func (r *recordingAppender) Append(event.Kind, interface{}) (uint64, error) {
	r.count++
	return r.count - 1, nil
}

type fakeClient struct {
	rate    numeric.UsdBtc
	err     error
	lastAsk time.Time
}

func (f *fakeClient) GetExchangeRate(_ context.Context, asOf time.Time) (numeric.UsdBtc, uint32, error) {
	f.lastAsk = asOf
	if f.err != nil {
		return numeric.UsdBtc{}, 0, f.err
	}
	return f.rate, 8, nil
}

func newTestStore(t *testing.T) *protocolstate.Store {
	t.Helper()
	dev, err := principal.FromBytes(make([]byte, 20))
	require.NoError(t, err)
	s := protocolstate.NewFromInit(protocolstate.InitArgs{DeveloperPrincipal: dev})
	return protocolstate.NewStore(s)
}

func TestTickAppliesFreshQuoteAndRunsLiquidationSweep(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{rate: numeric.NewUsdBtc(decimal.NewFromInt(20000))}
	eng := liquidation.NewEngine(store, &recordingAppender{}, nil)

	d := NewDriver(store, client, eng, nil)
	fixedNow := time.Unix(0, int64(1_000_000_000_000))
	d.Now = func() time.Time { return fixedNow }

	d.tick(context.Background())

	store.Read(func(s *protocolstate.State) {
		require.NotNil(t, s.LastBtcRate)
		require.Equal(t, client.rate.String(), s.LastBtcRate.String())
		require.NotNil(t, s.LastBtcTimestamp)
		require.Equal(t, uint64(fixedNow.UnixNano()), *s.LastBtcTimestamp)
		require.Equal(t, protocolstate.ModeGeneralAvailability, s.Mode)
	})
	require.True(t, client.lastAsk.Before(fixedNow))
}

func TestTickIgnoresStaleTimestamp(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{rate: numeric.NewUsdBtc(decimal.NewFromInt(20000))}
	eng := liquidation.NewEngine(store, &recordingAppender{}, nil)
	d := NewDriver(store, client, eng, nil)

	first := time.Unix(100, 0)
	d.Now = func() time.Time { return first }
	d.tick(context.Background())

	var firstSeen uint64
	store.Read(func(s *protocolstate.State) { firstSeen = *s.LastBtcTimestamp })

	earlier := time.Unix(50, 0)
	d.Now = func() time.Time { return earlier }
	d.tick(context.Background())

	store.Read(func(s *protocolstate.State) {
		require.Equal(t, firstSeen, *s.LastBtcTimestamp)
	})
}

func TestTickSanityRejectForcesReadOnly(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{rate: numeric.NewUsdBtc(decimal.NewFromInt(5))}
	eng := liquidation.NewEngine(store, &recordingAppender{}, nil)
	d := NewDriver(store, client, eng, nil)
	d.Now = func() time.Time { return time.Unix(1, 0) }

	d.tick(context.Background())

	store.Read(func(s *protocolstate.State) {
		require.Equal(t, protocolstate.ModeReadOnly, s.Mode)
		require.Nil(t, s.LastBtcRate)
	})
}

func TestTickFetchErrorLeavesStateUntouched(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{err: errors.New("rpc: exchange rate unavailable")}
	eng := liquidation.NewEngine(store, &recordingAppender{}, nil)
	d := NewDriver(store, client, eng, nil)

	var results []string
	d.OnFetch = func(result string) { results = append(results, result) }
	d.tick(context.Background())

	require.Equal(t, []string{"error"}, results)
	store.Read(func(s *protocolstate.State) {
		require.Nil(t, s.LastBtcRate)
	})
}
