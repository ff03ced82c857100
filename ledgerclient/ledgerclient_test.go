package ledgerclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"talvault/numeric"
	"talvault/principal"
	"talvault/transfer"
)

type fakeDoer struct {
	resp   *http.Response
	gotPath string
	gotBody string
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.gotPath = req.URL.Path
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.gotBody = string(b)
	}
	return f.resp, nil
}

func jsonResponse(body string) *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}
}

func testPrincipal(t *testing.T, last byte) principal.Principal {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = last
	p, err := principal.FromBytes(raw)
	require.NoError(t, err)
	return p
}

func TestTransferReturnsBlockIndex(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(`{"block_index":42}`)}
	c := New(doer, "http://ledger.internal")

	block, err := c.Transfer(context.Background(), testPrincipal(t, 1), 500, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(42), block)
	require.Equal(t, "/transfer", doer.gotPath)
	require.Contains(t, doer.gotBody, `"amount":500`)
}

func TestTransferFromReturnsBlockIndex(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(`{"block_index":7}`)}
	c := New(doer, "http://ledger.internal")

	block, err := c.TransferFrom(context.Background(), testPrincipal(t, 2), 100, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(7), block)
	require.Equal(t, "/transfer_from", doer.gotPath)
}

func TestTransferMapsBadFee(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(`{"error":"bad_fee","expected":20}`)}
	c := New(doer, "http://ledger.internal")

	_, err := c.Transfer(context.Background(), testPrincipal(t, 3), 500, 10)
	var bf transfer.BadFee
	require.ErrorAs(t, err, &bf)
	require.Equal(t, numeric.CKBTC(20), bf.Expected)
}

func TestTransferMapsInsufficientFunds(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(`{"error":"insufficient_funds"}`)}
	c := New(doer, "http://ledger.internal")

	_, err := c.Transfer(context.Background(), testPrincipal(t, 4), 500, 10)
	require.ErrorIs(t, err, transfer.ErrInsufficientFunds)
}

func TestTransferMapsGenericError(t *testing.T) {
	doer := &fakeDoer{resp: jsonResponse(`{"error":"canister trapped"}`)}
	c := New(doer, "http://ledger.internal")

	_, err := c.Transfer(context.Background(), testPrincipal(t, 5), 500, 10)
	var generic transfer.GenericTransferError
	require.ErrorAs(t, err, &generic)
}
