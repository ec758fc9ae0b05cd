package solana

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testSig    = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return per call.
type mockRPCClient struct {
	mu sync.Mutex

	pages    [][]*rpc.TransactionSignature
	pageErrs map[int]error // page index -> error
	sigCalls []rpc.GetSignaturesForAddressOpts

	txResult *rpc.GetParsedTransactionResult
	txErrs   []error // consumed one per call; nil means success
	txCalls  int

	largest []*rpc.TokenLargestAccountsResult
	err     error
}

func (m *mockRPCClient) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.sigCalls)
	m.sigCalls = append(m.sigCalls, *opts)
	if err, ok := m.pageErrs[idx]; ok {
		return nil, err
	}
	if idx >= len(m.pages) {
		return nil, nil
	}
	return m.pages[idx], nil
}

func (m *mockRPCClient) GetParsedTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetParsedTransactionOpts,
) (*rpc.GetParsedTransactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.txCalls
	m.txCalls++
	if call < len(m.txErrs) && m.txErrs[call] != nil {
		return nil, m.txErrs[call]
	}
	return m.txResult, nil
}

func (m *mockRPCClient) GetTokenLargestAccounts(
	ctx context.Context,
	mint solana.PublicKey,
) ([]*rpc.TokenLargestAccountsResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.largest, nil
}

func newTestClient(mock RPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, nil, "test", nil, logger)
}

// testSignature returns a distinct, deterministic signature for n.
func testSignature(n int) solana.Signature {
	var sig solana.Signature
	binary.BigEndian.PutUint64(sig[:8], uint64(n)+1)
	return sig
}

// makePage builds a raw page of size entries starting at offset. Every tenth
// entry failed and every seventh is only confirmed.
func makePage(offset, size int) []*rpc.TransactionSignature {
	page := make([]*rpc.TransactionSignature, 0, size)
	for i := 0; i < size; i++ {
		n := offset + i
		sig := &rpc.TransactionSignature{
			Signature:          testSignature(n),
			Slot:               uint64(1_000_000 - n),
			ConfirmationStatus: rpc.ConfirmationStatusFinalized,
		}
		if n%10 == 0 {
			sig.Err = map[string]any{"InstructionError": []any{0, "Custom"}}
		}
		if n%7 == 0 {
			sig.ConfirmationStatus = rpc.ConfirmationStatusConfirmed
		}
		page = append(page, sig)
	}
	return page
}

func countFinalized(pages ...[]*rpc.TransactionSignature) int {
	n := 0
	for _, p := range pages {
		for _, s := range p {
			if s.Err == nil && s.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				n++
			}
		}
	}
	return n
}

func TestSignatures_StopsOnShortPage(t *testing.T) {
	p1, p2, p3 := makePage(0, 1000), makePage(1000, 1000), makePage(2000, 400)
	mock := &mockRPCClient{
		pages: [][]*rpc.TransactionSignature{p1, p2, p3, makePage(2400, 10)},
	}
	client := newTestClient(mock)

	it := client.Signatures(testWallet)
	records, err := it.Collect(context.Background())

	require.NoError(t, err)
	require.Len(t, mock.sigCalls, 3, "a short page ends pagination")
	assert.Equal(t, 3, it.Pages())
	assert.Len(t, records, countFinalized(p1, p2, p3))

	// Cursors follow the last raw signature of the previous page.
	assert.Equal(t, solana.Signature{}, mock.sigCalls[0].Before)
	assert.Equal(t, p1[999].Signature, mock.sigCalls[1].Before)
	assert.Equal(t, p2[999].Signature, mock.sigCalls[2].Before)
	for _, call := range mock.sigCalls {
		require.NotNil(t, call.Limit)
		assert.Equal(t, PageSize, *call.Limit)
	}

	for _, rec := range records {
		assert.True(t, rec.Finalized())
	}
	assert.Equal(t, p1[1].Signature.String(), records[0].Signature, "newest first")
}

func TestSignatures_FiltersButKeepsPaging(t *testing.T) {
	failed := make([]*rpc.TransactionSignature, 0, 1000)
	for i := 0; i < 1000; i++ {
		failed = append(failed, &rpc.TransactionSignature{
			Signature:          testSignature(i),
			Err:                "failed",
			ConfirmationStatus: rpc.ConfirmationStatusFinalized,
		})
	}
	last := []*rpc.TransactionSignature{{
		Signature:          testSignature(5000),
		ConfirmationStatus: rpc.ConfirmationStatusFinalized,
	}}
	mock := &mockRPCClient{pages: [][]*rpc.TransactionSignature{failed, last}}

	records, err := newTestClient(mock).Signatures(testWallet).Collect(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testSignature(5000).String(), records[0].Signature)
	assert.Len(t, mock.sigCalls, 2)
}

func TestSignatures_EmptyHistory(t *testing.T) {
	mock := &mockRPCClient{}

	records, err := newTestClient(mock).Signatures(testWallet).Collect(context.Background())

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Len(t, mock.sigCalls, 1)
}

func TestSignatures_FailFast(t *testing.T) {
	mock := &mockRPCClient{
		pages:    [][]*rpc.TransactionSignature{makePage(0, 1000), makePage(1000, 1000)},
		pageErrs: map[int]error{1: errors.New("connection reset by peer")},
	}

	it := newTestClient(mock).Signatures(testWallet)
	records, err := it.Collect(context.Background())

	require.Error(t, err)
	assert.Nil(t, records, "no partial results on error")
	assert.ErrorIs(t, err, ErrTransport)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "getSignaturesForAddress", fe.Op)
	assert.Equal(t, testWallet, fe.Target)

	assert.False(t, it.Next(context.Background()), "iterator is not restartable")
	assert.Len(t, mock.sigCalls, 2)
}

func TestSignatures_InvalidWallet(t *testing.T) {
	mock := &mockRPCClient{}

	_, err := newTestClient(mock).Signatures("not-a-wallet").Collect(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataShape)
	assert.Empty(t, mock.sigCalls)
}

func TestSignatures_Lazy(t *testing.T) {
	mock := &mockRPCClient{pages: [][]*rpc.TransactionSignature{makePage(1, 3)}}
	it := newTestClient(mock).Signatures(testWallet)

	assert.Empty(t, mock.sigCalls, "no call before Next")
	require.True(t, it.Next(context.Background()))
	assert.Len(t, mock.sigCalls, 1)
}

func TestFinalizedSignatures(t *testing.T) {
	p1 := makePage(0, 1000)
	p2 := makePage(1000, 3)
	client := newTestClient(&mockRPCClient{pages: [][]*rpc.TransactionSignature{p1, p2}})

	sigs, err := client.FinalizedSignatures(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Len(t, sigs, countFinalized(p1, p2))
	// 1 is the first finalized, successful entry of makePage(0, ...).
	assert.Equal(t, testSignature(1).String(), sigs[0])
}

func TestFinalizedSignatures_Error(t *testing.T) {
	client := newTestClient(&mockRPCClient{
		pages:    [][]*rpc.TransactionSignature{makePage(0, 1000)},
		pageErrs: map[int]error{1: errors.New("connection reset")},
	})

	sigs, err := client.FinalizedSignatures(context.Background(), testWallet)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Nil(t, sigs)
}

func TestSignaturePage(t *testing.T) {
	p1 := makePage(0, 100)
	mock := &mockRPCClient{pages: [][]*rpc.TransactionSignature{p1}}
	client := newTestClient(mock)

	sigs, next, err := client.SignaturePage(context.Background(), testWallet, "", 100)
	require.NoError(t, err)
	assert.Len(t, sigs, countFinalized(p1))
	assert.Equal(t, p1[99].Signature.String(), next, "a full page continues from its last raw signature")

	require.Len(t, mock.sigCalls, 1)
	assert.Equal(t, 100, *mock.sigCalls[0].Limit)
	assert.Equal(t, solana.Signature{}, mock.sigCalls[0].Before)
}

func TestSignaturePage_Cursor(t *testing.T) {
	mock := &mockRPCClient{pages: [][]*rpc.TransactionSignature{makePage(100, 40)}}
	client := newTestClient(mock)

	sigs, next, err := client.SignaturePage(context.Background(), testWallet, testSignature(99).String(), 100)
	require.NoError(t, err)
	assert.NotEmpty(t, sigs)
	assert.Empty(t, next, "a short page ends the history")
	assert.Equal(t, testSignature(99), mock.sigCalls[0].Before)
}

func TestSignaturePage_LimitCapped(t *testing.T) {
	mock := &mockRPCClient{}

	_, next, err := newTestClient(mock).SignaturePage(context.Background(), testWallet, "", 5000)
	require.NoError(t, err)
	assert.Empty(t, next)
	assert.Equal(t, PageSize, *mock.sigCalls[0].Limit)
}

func TestSignaturePage_InvalidInput(t *testing.T) {
	mock := &mockRPCClient{}
	client := newTestClient(mock)

	_, _, err := client.SignaturePage(context.Background(), testWallet, "not a signature", 100)
	assert.ErrorIs(t, err, ErrDataShape)

	_, _, err = client.SignaturePage(context.Background(), "not-a-wallet", "", 100)
	assert.ErrorIs(t, err, ErrDataShape)
	assert.Empty(t, mock.sigCalls)
}

func TestFetchTransaction_NotFound(t *testing.T) {
	mock := &mockRPCClient{txErrs: []error{rpc.ErrNotFound}}

	tx, err := newTestClient(mock).FetchTransaction(context.Background(), testSig)

	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Equal(t, 1, mock.txCalls)
}

func TestFetchTransaction_Parsed(t *testing.T) {
	var result rpc.GetParsedTransactionResult
	require.NoError(t, json.Unmarshal([]byte(parsedTransactionFixture), &result))
	mock := &mockRPCClient{txResult: &result}

	tx, err := newTestClient(mock).FetchTransaction(context.Background(), testSig)

	require.NoError(t, err)
	require.NotNil(t, tx)
	assertFixtureTransaction(t, tx)
}

func TestFetchTransaction_MissingBlockTime(t *testing.T) {
	mock := &mockRPCClient{txResult: &rpc.GetParsedTransactionResult{}}

	_, err := newTestClient(mock).FetchTransaction(context.Background(), testSig)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataShape)
}

func TestFetchTransaction_NilMeta(t *testing.T) {
	bt := solana.UnixTimeSeconds(1700000000)
	mock := &mockRPCClient{txResult: &rpc.GetParsedTransactionResult{BlockTime: &bt}}

	tx, err := newTestClient(mock).FetchTransaction(context.Background(), testSig)

	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Nil(t, tx.Meta)
	assert.Equal(t, int64(1700000000), tx.BlockTime)
}

func TestFetchTransaction_TransportErrorNotRetried(t *testing.T) {
	mock := &mockRPCClient{txErrs: []error{errors.New("dial tcp: connection refused")}}

	_, err := newTestClient(mock).FetchTransaction(context.Background(), testSig)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, mock.txCalls)
}

func TestFetchTransaction_InvalidSignature(t *testing.T) {
	mock := &mockRPCClient{}

	_, err := newTestClient(mock).FetchTransaction(context.Background(), "bogus")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataShape)
	assert.Equal(t, 0, mock.txCalls)
}

func TestLargestAccounts(t *testing.T) {
	ui := 1234.5
	mock := &mockRPCClient{
		largest: []*rpc.TokenLargestAccountsResult{
			{
				Address: solana.MustPublicKeyFromBase58(testWallet),
				UiTokenAmount: rpc.UiTokenAmount{
					Amount:         "1234500000",
					Decimals:       6,
					UiAmount:       &ui,
					UiAmountString: "1234.5",
				},
			},
			nil,
		},
	}

	accounts, err := newTestClient(mock).LargestAccounts(context.Background(), testMint)

	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, testWallet, accounts[0].Address)
	assert.Equal(t, "1234500000", accounts[0].Amount)
	assert.Equal(t, uint8(6), accounts[0].Decimals)
	require.NotNil(t, accounts[0].UIAmount)
	assert.Equal(t, 1234.5, *accounts[0].UIAmount)
}

func TestLargestAccounts_Error(t *testing.T) {
	mock := &mockRPCClient{err: errors.New("timeout")}

	_, err := newTestClient(mock).LargestAccounts(context.Background(), testMint)

	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "getTokenLargestAccounts", fe.Op)
	assert.Equal(t, testMint, fe.Target)
}
