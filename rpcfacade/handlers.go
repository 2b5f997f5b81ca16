package rpcfacade

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/core"
	"github.com/noctis-project/noctis/crypto"
)

// handlerError pairs an HTTP status with the message sent back to the
// caller, the same shape apiserver/utils.HandlerError plays for
// routes.go's sendErr.
type handlerError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *handlerError) Error() string { return e.Message }

func badRequest(msg string) *handlerError  { return &handlerError{Code: http.StatusBadRequest, Message: msg} }
func internalErr(msg string) *handlerError { return &handlerError{Code: http.StatusInternalServerError, Message: msg} }

// typedHandler is the per-route signature every handler below
// implements; makeHandler adapts it to http.HandlerFunc, mirroring
// routes.go's makeHandler(handler func(...) (interface{}, *HandlerError)).
type typedHandler func(r *http.Request) (interface{}, *handlerError)

func makeHandler(h typedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, hErr := h(r)
		if hErr != nil {
			log.Warnf("rpcfacade: %s %s: %s", r.Method, r.URL.Path, hErr.Message)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(hErr.Code)
			_ = json.NewEncoder(w).Encode(hErr)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (f *Facade) addRoutes() {
	f.router.HandleFunc("/info", makeHandler(f.handleInfo)).Methods("GET")
	f.router.HandleFunc("/block/template", makeHandler(f.handleGetBlockTemplate)).Methods("POST")
	f.router.HandleFunc("/block", makeHandler(f.handleAddBlock)).Methods("POST")
	f.router.HandleFunc("/block/submit", makeHandler(f.handleSubmitBlock)).Methods("POST")
	f.router.HandleFunc("/transaction", makeHandler(f.handleAddTransaction)).Methods("POST")
	f.router.HandleFunc("/transactions", makeHandler(f.handleGetTransactions)).Methods("POST")
	f.router.HandleFunc("/outputs/random", makeHandler(f.handleGetRandomOutputs)).Methods("POST")
	f.router.HandleFunc("/blocks", makeHandler(f.handleQueryBlocksLite)).Methods("POST")
	f.router.HandleFunc("/notifications", f.handleWebsocket).Methods("GET")
}

func decodeJSON(r *http.Request, v interface{}) *handlerError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("decoding request body: " + err.Error())
	}
	return nil
}

func decodeHash(s string) (crypto.Hash, *handlerError) {
	var h crypto.Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != crypto.HashSize {
		return h, badRequest("invalid hash: " + s)
	}
	copy(h[:], b)
	return h, nil
}

func (f *Facade) handleInfo(r *http.Request) (interface{}, *handlerError) {
	return map[string]interface{}{"running": true}, nil
}

type getBlockTemplateRequest struct {
	MinerAddress string `json:"miner_address"`
	ExtraNonce   string `json:"extra_nonce"`
}

type getBlockTemplateResponse struct {
	TemplateBytes string `json:"template_bytes"`
	Difficulty    uint64 `json:"difficulty"`
	Height        uint64 `json:"height"`
}

func (f *Facade) handleGetBlockTemplate(r *http.Request) (interface{}, *handlerError) {
	var req getBlockTemplateRequest
	if hErr := decodeJSON(r, &req); hErr != nil {
		return nil, hErr
	}

	keyBytes, err := hex.DecodeString(req.MinerAddress)
	if err != nil || len(keyBytes) != crypto.PublicKeySize {
		return nil, badRequest("invalid miner_address")
	}
	var minerKey crypto.PublicKey
	copy(minerKey[:], keyBytes)

	extraNonce, err := hex.DecodeString(req.ExtraNonce)
	if err != nil {
		return nil, badRequest("invalid extra_nonce")
	}

	result, err := f.core.GetBlockTemplate(minerKey, extraNonce)
	if err != nil {
		if err == core.ErrZeroDifficulty {
			return nil, badRequest(err.Error())
		}
		return nil, internalErr(err.Error())
	}

	return &getBlockTemplateResponse{
		TemplateBytes: hex.EncodeToString(blockmodel.EncodeBlockTemplate(result.Template)),
		Difficulty:    result.Difficulty,
		Height:        result.Height,
	}, nil
}

type addBlockRequest struct {
	RawBlockHex string `json:"raw_block"`
}

type addBlockResponse struct {
	Status string `json:"status"`
}

func (f *Facade) handleAddBlock(r *http.Request) (interface{}, *handlerError) {
	var req addBlockRequest
	if hErr := decodeJSON(r, &req); hErr != nil {
		return nil, hErr
	}
	data, err := hex.DecodeString(req.RawBlockHex)
	if err != nil {
		return nil, badRequest("invalid raw_block")
	}
	raw, err := blockmodel.DecodeRawBlock(data)
	if err != nil {
		return nil, badRequest("decoding raw_block: " + err.Error())
	}

	code, err := f.core.AddBlock(raw)
	if err != nil {
		return nil, badRequest(err.Error())
	}
	return &addBlockResponse{Status: code.String()}, nil
}

type submitBlockRequest struct {
	TemplateBytesHex string `json:"template_bytes"`
}

func (f *Facade) handleSubmitBlock(r *http.Request) (interface{}, *handlerError) {
	var req submitBlockRequest
	if hErr := decodeJSON(r, &req); hErr != nil {
		return nil, hErr
	}
	data, err := hex.DecodeString(req.TemplateBytesHex)
	if err != nil {
		return nil, badRequest("invalid template_bytes")
	}

	code, err := f.core.SubmitBlock(data)
	if err != nil {
		return nil, badRequest(err.Error())
	}
	return &addBlockResponse{Status: code.String()}, nil
}

type addTransactionRequest struct {
	RawTransactionHex string `json:"raw_transaction"`
}

type addTransactionResponse struct {
	Status string `json:"status"`
}

func (f *Facade) handleAddTransaction(r *http.Request) (interface{}, *handlerError) {
	var req addTransactionRequest
	if hErr := decodeJSON(r, &req); hErr != nil {
		return nil, hErr
	}
	data, err := hex.DecodeString(req.RawTransactionHex)
	if err != nil {
		return nil, badRequest("invalid raw_transaction")
	}
	if err := f.core.AddTransaction(data); err != nil {
		return nil, badRequest(err.Error())
	}
	return &addTransactionResponse{Status: "accepted"}, nil
}

type getTransactionsRequest struct {
	Hashes []string `json:"hashes"`
}

type getTransactionsResponse struct {
	Found  []string `json:"found"`
	Missed []string `json:"missed"`
}

func (f *Facade) handleGetTransactions(r *http.Request) (interface{}, *handlerError) {
	var req getTransactionsRequest
	if hErr := decodeJSON(r, &req); hErr != nil {
		return nil, hErr
	}

	hashes := make([]crypto.Hash, len(req.Hashes))
	for i, s := range req.Hashes {
		h, hErr := decodeHash(s)
		if hErr != nil {
			return nil, hErr
		}
		hashes[i] = h
	}

	found, missed := f.core.GetTransactions(hashes)
	resp := &getTransactionsResponse{}
	for _, tx := range found {
		resp.Found = append(resp.Found, hex.EncodeToString(tx.Encoded()))
	}
	for _, h := range missed {
		resp.Missed = append(resp.Missed, h.String())
	}
	return resp, nil
}

type getRandomOutputsRequest struct {
	Amount uint64 `json:"amount"`
	Count  int    `json:"count"`
}

type randomOutputResponse struct {
	GlobalIndex uint64 `json:"global_index"`
	Key         string `json:"key"`
}

func (f *Facade) handleGetRandomOutputs(r *http.Request) (interface{}, *handlerError) {
	var req getRandomOutputsRequest
	if hErr := decodeJSON(r, &req); hErr != nil {
		return nil, hErr
	}

	outputs, err := f.core.GetRandomOutputs(req.Amount, req.Count)
	if err != nil {
		return nil, badRequest(err.Error())
	}

	resp := make([]randomOutputResponse, len(outputs))
	for i, o := range outputs {
		resp[i] = randomOutputResponse{GlobalIndex: o.GlobalIndex, Key: hex.EncodeToString(o.Key[:])}
	}
	return resp, nil
}

type queryBlocksRequest struct {
	KnownHashes []string `json:"known_hashes"`
	Limit       int      `json:"limit"`
}

type queryBlocksResponse struct {
	StartHeight uint64                    `json:"start_height"`
	Stats       []blockmodel.PerBlockStats `json:"stats"`
}

func (f *Facade) handleQueryBlocksLite(r *http.Request) (interface{}, *handlerError) {
	var req queryBlocksRequest
	if hErr := decodeJSON(r, &req); hErr != nil {
		return nil, hErr
	}

	knownIDs := make([]crypto.Hash, len(req.KnownHashes))
	for i, s := range req.KnownHashes {
		h, hErr := decodeHash(s)
		if hErr != nil {
			return nil, hErr
		}
		knownIDs[i] = h
	}

	start, stats, err := f.core.QueryBlocksLite(knownIDs, req.Limit)
	if err != nil {
		return nil, badRequest(err.Error())
	}
	return &queryBlocksResponse{StartHeight: start, Stats: stats}, nil
}
