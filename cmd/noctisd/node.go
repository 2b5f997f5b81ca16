// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/noctis-project/noctis/blockstore"
	"github.com/noctis-project/noctis/config"
	"github.com/noctis-project/noctis/core"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/mempool"
	"github.com/noctis-project/noctis/p2p"
	"github.com/noctis-project/noctis/p2p/relaypb"
	"github.com/noctis-project/noctis/rpcfacade"
	"github.com/noctis-project/noctis/segmenttree"
	"github.com/noctis-project/noctis/validator"
)

// noctisd is a wrapper for all of the daemon's services, the same
// one-struct-per-component shape kaspad.go's kaspad type wraps the
// netAdapter/connectionManager/rpcServer trio in.
type noctisd struct {
	cfg        *config.Config
	core       *core.Core
	relay      *p2p.Relay
	grpcServer *grpc.Server
	facade     *rpcfacade.Facade

	started, shutdown int32
}

// newNoctisd wires every component's constructor together but starts
// nothing; call start to begin accepting connections.
func newNoctisd(cfg *config.Config) (*noctisd, error) {
	netParams := config.MainNetParams()
	if cfg.TestNet {
		netParams = config.TestNetParams()
	}

	rootStore, err := blockstore.OpenLevelIndexStore(filepath.Join(cfg.DataDir, "blocks"))
	if err != nil {
		return nil, errors.Wrap(err, "opening root block store")
	}

	storeOpener := func(id segmenttree.SegmentID) (blockstore.Store, error) {
		return blockstore.OpenLevelIndexStore(filepath.Join(cfg.DataDir, fmt.Sprintf("segment-%d", int(id))))
	}
	tree := segmenttree.New(rootStore, storeOpener)

	events := eventbus.NewBus()

	checkpointSet, err := netParams.CheckpointSet()
	if err != nil {
		return nil, errors.Wrap(err, "seeding checkpoints")
	}

	c := core.New(core.Config{
		Params:      netParams.Consensus,
		Checkpoints: checkpointSet,
		Events:      events,
		ValidatorCtx: &validator.Context{
			BlockFutureTimeLimit: 7200,
			TimestampCheckWindow: 60,
			// spec.md §4.D rule 2: a major-version-2-or-above block's
			// parent may not exceed 2048 bytes.
			MaxParentBlockSize: 2048,
		},
		Pool: mempool.Config{
			MinimumFee:      cfg.MinimumFee,
			CoinbaseReserve: cfg.CoinbaseReserve,
			Expiry:          24 * time.Hour,
		},
	}, tree)

	if err := c.Load(); err != nil {
		return nil, errors.Wrap(err, "replaying persisted chain")
	}
	if err := c.AddGenesis(netParams.GenesisBlock()); err != nil {
		log.Debugf("noctisd: genesis not seeded: %s", err)
	}

	relaySub := events.Subscribe(cfg.NotificationCapacity)
	relay := p2p.NewRelay(c, relaySub)
	grpcServer := grpc.NewServer()
	relaypb.RegisterRelayServer(grpcServer, relay)

	facade := rpcfacade.New(rpcfacade.Config{
		Addr:                 cfg.RPCListen,
		NotificationCapacity: cfg.NotificationCapacity,
	}, c, events)

	return &noctisd{
		cfg:        cfg,
		core:       c,
		relay:      relay,
		grpcServer: grpcServer,
		facade:     facade,
	}, nil
}

// start launches every service. Already-started calls are a no-op, the
// same idempotence kaspad.start's atomic guard gives the daemon.
func (n *noctisd) start() error {
	if atomic.AddInt32(&n.started, 1) != 1 {
		return nil
	}

	log.Infof("noctisd: starting")
	n.core.Start()
	n.facade.Start()

	listener, err := net.Listen("tcp", n.cfg.P2PListen)
	if err != nil {
		return errors.Wrap(err, "listening for P2P relay connections")
	}
	go func() {
		if err := n.grpcServer.Serve(listener); err != nil {
			log.Errorf("noctisd: P2P relay server: %s", err)
		}
	}()
	log.Infof("noctisd: P2P relay listening on %s", n.cfg.P2PListen)

	return nil
}

// stop gracefully shuts every service down and flushes the chain to
// disk. Already-stopped calls are a no-op.
func (n *noctisd) stop() error {
	if atomic.AddInt32(&n.shutdown, 1) != 1 {
		log.Infof("noctisd: already shutting down")
		return nil
	}

	log.Warnf("noctisd: shutting down")
	n.grpcServer.GracefulStop()
	if err := n.facade.Stop(); err != nil {
		log.Errorf("noctisd: stopping rpcfacade: %s", err)
	}
	n.core.Stop()

	if err := n.core.Save(); err != nil {
		return errors.Wrap(err, "flushing chain to disk")
	}
	return nil
}
