// Package numeric implements the four disjoint quantity kinds the protocol
// operates on: TAL and CKBTC (integer, 1e-8 scaled token amounts), and Ratio
// and UsdBtc (arbitrary-precision decimals). None of the four convert into
// each other implicitly; every cross-type operation below is the only way
// to move between them.
package numeric

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/shopspring/decimal"
)

// E8S is the fixed-point scale shared by TAL and CKBTC.
const E8S uint64 = 100_000_000

// decimalPrecision is the fractional-digit floor shopspring/decimal's Div
// truncates to. The package default of 16 falls short of the ≥28-digit
// precision the protocol's ratios and prices require, so every process
// that links this package raises it once at init.
const decimalPrecision = 28

func init() {
	decimal.DivisionPrecision = decimalPrecision
}

// MaxRatio stands in for "infinite" collateral ratio when a vault carries
// no debt: it compares greater than any real threshold the protocol checks
// against (CCR tops out at 1.5).
func MaxRatio() Ratio {
	return Ratio{decimal.New(1, 30)}
}

// TAL is an integer amount of the debt token, in 1e-8 units.
type TAL uint64

// CKBTC is an integer amount of the collateral token, in 1e-8 units.
type CKBTC uint64

// Ratio is an arbitrary-precision decimal used for collateral ratios, fees
// and pool shares.
type Ratio struct{ d decimal.Decimal }

// UsdBtc is an arbitrary-precision decimal USD price of one BTC.
type UsdBtc struct{ d decimal.Decimal }

// NewRatio wraps a decimal.Decimal as a Ratio.
func NewRatio(d decimal.Decimal) Ratio { return Ratio{d} }

// RatioFromString parses a decimal string into a Ratio.
func RatioFromString(s string) (Ratio, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Ratio{}, fmt.Errorf("parse ratio %q: %w", s, err)
	}
	return Ratio{d}, nil
}

// NewUsdBtc wraps a decimal.Decimal as a UsdBtc price.
func NewUsdBtc(d decimal.Decimal) UsdBtc { return UsdBtc{d} }

// UsdBtcFromString parses a decimal string into a UsdBtc price.
func UsdBtcFromString(s string) (UsdBtc, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return UsdBtc{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	return UsdBtc{d}, nil
}

func (r Ratio) Decimal() decimal.Decimal  { return r.d }
func (u UsdBtc) Decimal() decimal.Decimal { return u.d }

// Sub panics on underflow: quantities never go negative, and an attempt to
// do so is a programming bug, not a recoverable error.
func (a TAL) Sub(b TAL) TAL {
	if b > a {
		panic(fmt.Sprintf("numeric: TAL underflow %d - %d", a, b))
	}
	return a - b
}

func (a TAL) Add(b TAL) TAL { return a + b }

// SaturatingSub clamps to zero instead of panicking; used only where the
// original protocol explicitly wants saturation rather than a hard fault.
func (a TAL) SaturatingSub(b TAL) TAL {
	if b > a {
		return 0
	}
	return a - b
}

func (a CKBTC) Sub(b CKBTC) CKBTC {
	if b > a {
		panic(fmt.Sprintf("numeric: CKBTC underflow %d - %d", a, b))
	}
	return a - b
}

func (a CKBTC) Add(b CKBTC) CKBTC { return a + b }

func (a CKBTC) SaturatingSub(b CKBTC) CKBTC {
	if b > a {
		return 0
	}
	return a - b
}

func (r Ratio) Add(o Ratio) Ratio { return Ratio{r.d.Add(o.d)} }

// Sub panics on underflow, matching Token's Sub semantics.
func (r Ratio) Sub(o Ratio) Ratio {
	if o.d.GreaterThan(r.d) {
		panic(fmt.Sprintf("numeric: Ratio underflow %s - %s", r.d, o.d))
	}
	return Ratio{r.d.Sub(o.d)}
}

func (r Ratio) Mul(o Ratio) Ratio { return Ratio{r.d.Mul(o.d)} }

func (r Ratio) GreaterThan(o Ratio) bool      { return r.d.GreaterThan(o.d) }
func (r Ratio) GreaterThanOrEqual(o Ratio) bool { return r.d.GreaterThanOrEqual(o.d) }
func (r Ratio) LessThan(o Ratio) bool         { return r.d.LessThan(o.d) }
func (r Ratio) LessThanOrEqual(o Ratio) bool  { return r.d.LessThanOrEqual(o.d) }
func (r Ratio) Equal(o Ratio) bool            { return r.d.Equal(o.d) }
func (r Ratio) IsZero() bool                  { return r.d.IsZero() }

// Pow raises a Ratio to a non-negative integer power by repeated
// multiplication, mirroring the original's naive loop (exponents here are
// always small: a count of elapsed hours in the redemption fee decay).
func (r Ratio) Pow(n uint64) Ratio {
	result := decimal.NewFromInt(1)
	for i := uint64(0); i < n; i++ {
		result = result.Mul(r.d)
	}
	return Ratio{result}
}

// ClampRatio returns o bounded to [lo, hi].
func ClampRatio(o, lo, hi Ratio) Ratio {
	if o.LessThan(lo) {
		return lo
	}
	if o.GreaterThan(hi) {
		return hi
	}
	return o
}

// Mul computes the TAL value of a CKBTC amount at a given USD/BTC price.
func (c CKBTC) Mul(price UsdBtc) TAL {
	ckbtcDec := decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(int64(E8S)))
	result := ckbtcDec.Mul(price.d).Mul(decimal.NewFromInt(int64(E8S)))
	return TAL(truncateToUint64(result, "CKBTC * UsdBtc"))
}

// MulRatio scales a TAL amount by a Ratio, staying in TAL units (used for
// pro-rata shares and fee computations).
func (a TAL) MulRatio(r Ratio) TAL {
	dec := decimal.NewFromInt(int64(a)).Div(decimal.NewFromInt(int64(E8S)))
	result := dec.Mul(r.d).Mul(decimal.NewFromInt(int64(E8S)))
	return TAL(truncateToUint64(result, "TAL * Ratio"))
}

// MulRatio scales a CKBTC amount by a Ratio, staying in CKBTC units.
func (c CKBTC) MulRatio(r Ratio) CKBTC {
	dec := decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(int64(E8S)))
	result := dec.Mul(r.d).Mul(decimal.NewFromInt(int64(E8S)))
	return CKBTC(truncateToUint64(result, "CKBTC * Ratio"))
}

// DivUsdBtc converts a TAL amount to its CKBTC equivalent at a given price.
func (a TAL) DivUsdBtc(price UsdBtc) CKBTC {
	if price.d.IsZero() {
		panic(fmt.Sprintf("numeric: cannot divide %d by zero price", a))
	}
	talDec := decimal.NewFromInt(int64(a)).Div(decimal.NewFromInt(int64(E8S)))
	result := talDec.Div(price.d).Mul(decimal.NewFromInt(int64(E8S)))
	return CKBTC(truncateToUint64(result, "TAL / UsdBtc"))
}

// DivTAL computes the unit-less ratio of two TAL amounts.
func (a TAL) DivTAL(b TAL) Ratio {
	if b == 0 {
		panic(fmt.Sprintf("numeric: cannot divide %d by zero", a))
	}
	return Ratio{decimal.NewFromInt(int64(a)).Div(decimal.NewFromInt(int64(b)))}
}

// DivRatio scales a TAL amount down by a Ratio divisor, staying in TAL units.
func (a TAL) DivRatio(r Ratio) TAL {
	if r.d.IsZero() {
		panic(fmt.Sprintf("numeric: cannot divide %d by zero ratio", a))
	}
	talDec := decimal.NewFromInt(int64(a)).Div(decimal.NewFromInt(int64(E8S)))
	result := talDec.Div(r.d).Mul(decimal.NewFromInt(int64(E8S)))
	return TAL(truncateToUint64(result, "TAL / Ratio"))
}

// DivRatio scales a UsdBtc price down by a Ratio divisor.
func (u UsdBtc) DivRatio(r Ratio) UsdBtc {
	if r.d.IsZero() {
		panic(fmt.Sprintf("numeric: cannot divide %s by zero ratio", u.d))
	}
	return UsdBtc{u.d.Div(r.d)}
}

// DivCKBTC computes the unit-less ratio of two CKBTC amounts.
func (c CKBTC) DivCKBTC(o CKBTC) Ratio {
	if o == 0 {
		panic(fmt.Sprintf("numeric: cannot divide %d by zero", c))
	}
	return Ratio{decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(int64(o)))}
}

// truncateToUint64 truncates a decimal toward zero, matching
// rust_decimal's ToPrimitive::to_u64 truncation behavior.
func truncateToUint64(d decimal.Decimal, context string) uint64 {
	truncated := d.Truncate(0)
	if truncated.IsNegative() {
		panic(fmt.Sprintf("numeric: %s produced a negative amount: %s", context, d))
	}
	return truncated.BigInt().Uint64()
}

// String renders a token amount the way the original prints amounts:
// integer part, '.', then the fractional part padded to 8 digits with
// trailing zeros stripped (but always at least one digit after the dot).
func (a TAL) String() string   { return formatToken(uint64(a)) }
func (a CKBTC) String() string { return formatToken(uint64(a)) }

func formatToken(raw uint64) string {
	intPart := raw / E8S
	frac := raw % E8S
	if frac == 0 {
		return fmt.Sprintf("%d.0", intPart)
	}
	digits := 0
	for x := frac; x > 0; x /= 10 {
		digits++
	}
	stripped := frac
	for stripped%10 == 0 {
		stripped /= 10
	}
	return fmt.Sprintf("%d.%s%d", intPart, strings.Repeat("0", 8-digits), stripped)
}

func (r Ratio) String() string  { return r.d.String() }
func (u UsdBtc) String() string { return u.d.String() }

// EncodeRLP and DecodeRLP let Ratio and UsdBtc appear as fields in the
// RLP-encoded event log; decimal.Decimal has no native RLP representation,
// so both round-trip through their canonical decimal string.

func (r Ratio) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, r.d.String())
}

func (r *Ratio) DecodeRLP(s *rlp.Stream) error {
	var str string
	if err := s.Decode(&str); err != nil {
		return err
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		return fmt.Errorf("numeric: decode ratio %q: %w", str, err)
	}
	r.d = d
	return nil
}

func (u UsdBtc) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, u.d.String())
}

func (u *UsdBtc) DecodeRLP(s *rlp.Stream) error {
	var str string
	if err := s.Decode(&str); err != nil {
		return err
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		return fmt.Errorf("numeric: decode usdbtc %q: %w", str, err)
	}
	u.d = d
	return nil
}

// MarshalJSON and UnmarshalJSON round-trip Ratio and UsdBtc through their
// canonical decimal string, the same representation rpcservice's HTTP
// responses and get_vaults/get_protocol_status callers expect for
// arbitrary-precision fields.

func (r Ratio) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.d.String() + `"`), nil
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		return fmt.Errorf("numeric: decode ratio %q: %w", str, err)
	}
	r.d = d
	return nil
}

func (u UsdBtc) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.d.String() + `"`), nil
}

func (u *UsdBtc) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		return fmt.Errorf("numeric: decode usdbtc %q: %w", str, err)
	}
	u.d = d
	return nil
}
