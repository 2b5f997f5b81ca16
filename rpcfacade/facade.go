// Package rpcfacade is the thin, out-of-scope RPC boundary of spec.md
// §1: a JSON-over-HTTP query/submission surface plus a websocket
// notification feed, both calling back into the core façade only
// through its own thread-safe submission/query points (spec section
// 4's shared-resource policy), never touching the segment tree or
// mempool directly.
//
// Grounded on apiserver/server/routes.go's router-plus-typed-handler
// idiom (generalized from gorilla/mux route handlers returning
// `(interface{}, *HandlerError)` to this module's query surface) and
// rpcwebsocket.go's client/outHandler notification push, simplified to
// one shared broadcast hub rather than per-client subscription
// filtering.
package rpcfacade

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/core"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/ruleerrors"
)

// Queryable is the core façade surface the facade is allowed to call,
// matching core.Core's exported methods exactly so a *core.Core can be
// passed to New without any adapter that could drift out of sync with
// what AddBlock/AddTransaction/etc. actually do.
type Queryable interface {
	AddBlock(raw *blockmodel.RawBlock) (ruleerrors.AddBlockErrorCode, error)
	SubmitBlock(templateBytes []byte) (ruleerrors.AddBlockErrorCode, error)
	AddTransaction(raw []byte) error
	GetBlockTemplate(minerAddress crypto.PublicKey, extraNonce []byte) (*core.BlockTemplateResult, error)
	GetTransactions(hashes []crypto.Hash) (found []*blockmodel.CachedTransaction, missed []crypto.Hash)
	GetRandomOutputs(amount uint64, count int) ([]core.RandomOutput, error)
	QueryBlocksLite(knownIDs []crypto.Hash, limit int) (startHeight uint64, stats []blockmodel.PerBlockStats, err error)
}

// Config controls the facade's listen address and websocket buffering.
type Config struct {
	Addr                 string
	NotificationCapacity int
}

// Facade owns the HTTP server, the mux router, and the websocket
// notification hub.
type Facade struct {
	cfg    Config
	core   Queryable
	router *mux.Router
	hub    *hub
	server *http.Server
}

// New builds a Facade around core, subscribing its own notification
// hub to events from the core façade's eventbus.Bus.
func New(cfg Config, core Queryable, events *eventbus.Bus) *Facade {
	f := &Facade{
		cfg:    cfg,
		core:   core,
		router: mux.NewRouter(),
		hub:    newHub(events.Subscribe(cfg.NotificationCapacity)),
	}
	f.addRoutes()
	return f
}

// Start begins serving HTTP and starts the notification hub's fan-out
// goroutine. It does not block.
func (f *Facade) Start() {
	f.server = &http.Server{Addr: f.cfg.Addr, Handler: f.router}
	go f.hub.run()
	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("rpcfacade: serving %s: %s", f.cfg.Addr, err)
		}
	}()
	log.Infof("rpcfacade: listening on %s", f.cfg.Addr)
}

// Stop gracefully shuts the HTTP server down and stops the hub.
func (f *Facade) Stop() error {
	f.hub.stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.server.Shutdown(ctx)
}
