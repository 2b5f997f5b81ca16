package rpcfacade

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/core"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/ruleerrors"
)

// fakeQueryable is a minimal Queryable double so routing and
// request/response shaping can be exercised without a real core.Core.
type fakeQueryable struct {
	addTxErr     error
	addedTxBytes []byte
}

func (f *fakeQueryable) AddBlock(raw *blockmodel.RawBlock) (ruleerrors.AddBlockErrorCode, error) {
	return ruleerrors.AddedToMain, nil
}

func (f *fakeQueryable) SubmitBlock(templateBytes []byte) (ruleerrors.AddBlockErrorCode, error) {
	return ruleerrors.AddedToMain, nil
}

func (f *fakeQueryable) AddTransaction(raw []byte) error {
	f.addedTxBytes = raw
	return f.addTxErr
}

func (f *fakeQueryable) GetBlockTemplate(minerAddress crypto.PublicKey, extraNonce []byte) (*core.BlockTemplateResult, error) {
	return &core.BlockTemplateResult{
		Template: &blockmodel.BlockTemplate{
			MajorVersion: 1,
			Timestamp:    1700000000,
			Coinbase: &blockmodel.Transaction{
				Inputs:  []blockmodel.Input{{Kind: blockmodel.InputCoinbase, CoinbaseHeight: 1}},
				Outputs: []blockmodel.Output{{Amount: 1, TargetKind: blockmodel.OutputKey, Key: minerAddress}},
			},
		},
		Difficulty: 1,
		Height:     1,
	}, nil
}

func (f *fakeQueryable) GetTransactions(hashes []crypto.Hash) (found []*blockmodel.CachedTransaction, missed []crypto.Hash) {
	return nil, hashes
}

func (f *fakeQueryable) GetRandomOutputs(amount uint64, count int) ([]core.RandomOutput, error) {
	return []core.RandomOutput{{GlobalIndex: 7, Key: crypto.PublicKey{0xAB}}}, nil
}

func (f *fakeQueryable) QueryBlocksLite(knownIDs []crypto.Hash, limit int) (uint64, []blockmodel.PerBlockStats, error) {
	return 1, nil, nil
}

func newTestFacade(q Queryable) *Facade {
	return New(Config{Addr: ":0", NotificationCapacity: 8}, q, eventbus.NewBus())
}

func doJSON(t *testing.T, f *Facade, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleAddTransactionAcceptsHex(t *testing.T) {
	q := &fakeQueryable{}
	f := newTestFacade(q)

	rec := doJSON(t, f, "POST", "/transaction", addTransactionRequest{RawTransactionHex: hex.EncodeToString([]byte("tx"))})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	if string(q.addedTxBytes) != "tx" {
		t.Fatalf("addedTxBytes = %q, want \"tx\"", q.addedTxBytes)
	}
}

func TestHandleAddTransactionRejectsBadHex(t *testing.T) {
	f := newTestFacade(&fakeQueryable{})
	rec := doJSON(t, f, "POST", "/transaction", addTransactionRequest{RawTransactionHex: "not hex"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetBlockTemplateReturnsEncodedTemplate(t *testing.T) {
	f := newTestFacade(&fakeQueryable{})
	var minerKey crypto.PublicKey
	minerKey[0] = 0xAB

	rec := doJSON(t, f, "POST", "/block/template", getBlockTemplateRequest{
		MinerAddress: hex.EncodeToString(minerKey[:]),
		ExtraNonce:   "",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}

	var resp getBlockTemplateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Height != 1 || resp.Difficulty != 1 {
		t.Fatalf("resp = %+v, want Height=1 Difficulty=1", resp)
	}
	templateBytes, err := hex.DecodeString(resp.TemplateBytes)
	if err != nil {
		t.Fatalf("template_bytes not hex: %v", err)
	}
	decoded, err := blockmodel.DecodeBlockTemplate(templateBytes)
	if err != nil {
		t.Fatalf("decoding returned template: %v", err)
	}
	if decoded.MajorVersion != 1 {
		t.Fatalf("decoded.MajorVersion = %d, want 1", decoded.MajorVersion)
	}
}

func TestHandleGetBlockTemplateRejectsBadMinerAddress(t *testing.T) {
	f := newTestFacade(&fakeQueryable{})
	rec := doJSON(t, f, "POST", "/block/template", getBlockTemplateRequest{MinerAddress: "zz"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGetRandomOutputs(t *testing.T) {
	f := newTestFacade(&fakeQueryable{})
	rec := doJSON(t, f, "POST", "/outputs/random", getRandomOutputsRequest{Amount: 100, Count: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	var resp []randomOutputResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp) != 1 || resp[0].GlobalIndex != 7 {
		t.Fatalf("resp = %+v, want one output with GlobalIndex=7", resp)
	}
}

func TestHandleGetTransactionsReportsMissed(t *testing.T) {
	f := newTestFacade(&fakeQueryable{})
	hash := crypto.Hash{0x01}
	rec := doJSON(t, f, "POST", "/transactions", getTransactionsRequest{Hashes: []string{hash.String()}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	var resp getTransactionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Missed) != 1 || resp.Missed[0] != hash.String() {
		t.Fatalf("resp.Missed = %v, want [%s]", resp.Missed, hash.String())
	}
}

func TestHandleGetTransactionsRejectsBadHash(t *testing.T) {
	f := newTestFacade(&fakeQueryable{})
	rec := doJSON(t, f, "POST", "/transactions", getTransactionsRequest{Hashes: []string{"zz"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
