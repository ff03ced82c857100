package numeric

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRatioJSONRoundTrip(t *testing.T) {
	r := NewRatio(decimal.NewFromFloat(1.105))
	data, err := json.Marshal(r)
	require.NoError(t, err)
	require.Equal(t, `"1.105"`, string(data))

	var out Ratio
	require.NoError(t, json.Unmarshal(data, &out))
	require.True(t, r.Equal(out))
}

func TestUsdBtcJSONRoundTrip(t *testing.T) {
	u := NewUsdBtc(decimal.NewFromInt(20000))
	data, err := json.Marshal(u)
	require.NoError(t, err)
	require.Equal(t, `"20000"`, string(data))

	var out UsdBtc
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, u.String(), out.String())
}

func TestTALSubPanicsOnUnderflow(t *testing.T) {
	require.Panics(t, func() {
		TAL(1).Sub(TAL(2))
	})
}

func TestTALSubHappyPath(t *testing.T) {
	require.Equal(t, TAL(3), TAL(5).Sub(TAL(2)))
}

func TestCKBTCMulUsdBtc(t *testing.T) {
	// 1 ckBTC (1e8) at 20,000 USD/BTC -> 20,000 TAL (2e12 raw units).
	price := NewUsdBtc(decimal.NewFromInt(20000))
	got := CKBTC(E8S).Mul(price)
	require.Equal(t, TAL(20000*E8S), got)
}

func TestTALDivUsdBtc(t *testing.T) {
	price := NewUsdBtc(decimal.NewFromInt(20000))
	got := TAL(20000 * E8S).DivUsdBtc(price)
	require.Equal(t, CKBTC(E8S), got)
}

func TestTALDivTALRatio(t *testing.T) {
	got := TAL(150).DivTAL(TAL(300))
	require.True(t, got.Equal(NewRatio(decimal.NewFromFloat(0.5))))
}

func TestCKBTCDivCKBTCRatio(t *testing.T) {
	got := CKBTC(100).DivCKBTC(CKBTC(25))
	require.True(t, got.Equal(NewRatio(decimal.NewFromInt(4))))
}

func TestRatioPow(t *testing.T) {
	r := NewRatio(decimal.NewFromFloat(0.94))
	got := r.Pow(2)
	want := decimal.NewFromFloat(0.94).Mul(decimal.NewFromFloat(0.94))
	require.True(t, got.Decimal().Equal(want))
}

func TestRatioPowZero(t *testing.T) {
	r := NewRatio(decimal.NewFromFloat(0.94))
	got := r.Pow(0)
	require.True(t, got.Equal(NewRatio(decimal.NewFromInt(1))))
}

func TestClampRatio(t *testing.T) {
	lo := NewRatio(decimal.NewFromFloat(0.005))
	hi := NewRatio(decimal.NewFromFloat(0.05))

	require.True(t, ClampRatio(NewRatio(decimal.NewFromFloat(0.1)), lo, hi).Equal(hi))
	require.True(t, ClampRatio(NewRatio(decimal.NewFromFloat(0.0001)), lo, hi).Equal(lo))
	require.True(t, ClampRatio(NewRatio(decimal.NewFromFloat(0.02)), lo, hi).Equal(NewRatio(decimal.NewFromFloat(0.02))))
}

func TestTokenStringFormatting(t *testing.T) {
	require.Equal(t, "1.0", TAL(E8S).String())
	require.Equal(t, "0.5", TAL(E8S/2).String())
	require.Equal(t, "0.00000001", TAL(1).String())
	require.Equal(t, "123.456", TAL(12_345_600_000).String())
}

func TestSaturatingSub(t *testing.T) {
	require.Equal(t, TAL(0), TAL(1).SaturatingSub(TAL(5)))
	require.Equal(t, CKBTC(3), CKBTC(5).SaturatingSub(CKBTC(2)))
}
