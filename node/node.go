// Package node wires the shard lifecycle core's components - identity,
// storage adapter and manager, shard server, and protocol handlers - into
// one running process, the way the teacher's modules/host package wires a
// contract manager, negotiation handlers, and an RPC server around one
// running host.
package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/NebulousLabs/threadgroup"

	"gitlab.com/shardnet/core/contract"
	"gitlab.com/shardnet/core/crypto"
	"gitlab.com/shardnet/core/persist"
	"gitlab.com/shardnet/core/protocol"
	"gitlab.com/shardnet/core/protocol/smuxoverlay"
	"gitlab.com/shardnet/core/shard"
	"gitlab.com/shardnet/core/storage"
)

const boltFilename = "shardcore.db"

// Config configures a Node.
type Config struct {
	// Dir is the persistent data directory: identity key, settings,
	// bbolt database, and log file all live here.
	Dir string

	// ShardAddr is the address the shard server's HTTP listener binds
	// to, e.g. "localhost:9982". Empty disables the shard listener,
	// useful for tests that only exercise the protocol layer.
	ShardAddr string

	// TokenTTL overrides shard.DefaultTokenTTL when non-zero.
	TokenTTL time.Duration

	// CleanInterval overrides storage.DefaultCleanInterval when non-zero.
	CleanInterval time.Duration
}

// Node is a running shard core process: one identity, one storage
// adapter/manager, one shard server, and one protocol.Handlers bound to an
// Overlay.
type Node struct {
	Identity crypto.SecretKey
	Settings Settings

	Manager  *storage.Manager
	Tokens   *shard.TokenTable
	Server   *shard.Server
	Handlers *protocol.Handlers
	Overlay  *smuxoverlay.Overlay

	log *persist.Logger

	shardListener net.Listener
	shardHTTP     *http.Server

	tg threadgroup.ThreadGroup
}

// New constructs a Node from config, loading (or generating) its identity
// and settings from config.Dir and opening its bbolt-backed storage
// adapter there.
func New(config Config) (*Node, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("node: Dir is required")
	}
	if err := os.MkdirAll(config.Dir, 0700); err != nil {
		return nil, fmt.Errorf("node: could not create data directory: %w", err)
	}

	logger, err := persist.NewLogger(filepath.Join(config.Dir, "shardd.log"))
	if err != nil {
		return nil, fmt.Errorf("node: could not open log: %w", err)
	}

	identity, err := loadOrGenerateIdentity(config.Dir)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("node: could not load identity: %w", err)
	}

	settings, err := loadSettings(config.Dir)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("node: could not load settings: %w", err)
	}

	adapter, err := storage.OpenBoltAdapter(filepath.Join(config.Dir, boltFilename))
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("node: could not open storage database: %w", err)
	}

	manager, err := storage.NewManager(adapter, settings.MaxCapacity, config.CleanInterval, nil)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("node: could not start storage manager: %w", err)
	}

	n := &Node{Identity: identity, Settings: settings, Manager: manager, log: logger}

	tokens, err := shard.NewTokenTable(config.TokenTTL, &n.tg)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("node: could not start token table: %w", err)
	}
	n.Tokens = tokens

	n.Server = shard.NewServer(manager, tokens, n.lookupContract)
	n.Overlay = smuxoverlay.New()
	n.Handlers = protocol.NewHandlers(identity, manager, n.Server, tokens, n.Overlay)
	n.Handlers.Register()

	if config.ShardAddr != "" {
		if err := n.startShardListener(config.ShardAddr); err != nil {
			n.Close()
			return nil, err
		}
	}

	fingerprint := identity.PublicKey().Fingerprint().String()
	logger.Printf("node %s listening for shard traffic on %s\n", fingerprint, config.ShardAddr)

	return n, nil
}

// lookupContract resolves a (hash, contact) pair against the storage
// manager, the ContractLookup the shard server needs but has no notion of
// contracts itself to compute.
func (n *Node) lookupContract(hash, contact string) (*contract.Contract, bool) {
	item, err := n.Manager.Peek(hash)
	if err != nil {
		return nil, false
	}
	return item.GetContract(contact)
}

func (n *Node) startShardListener(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("node: could not bind shard listener: %w", err)
	}
	n.shardListener = listener
	n.shardHTTP = &http.Server{Handler: n.Server.Handler}

	if err := n.tg.Launch(func() {
		n.shardHTTP.Serve(listener)
	}); err != nil {
		listener.Close()
		return err
	}
	return nil
}

// Close stops every background loop and releases every resource New
// opened, in reverse order.
func (n *Node) Close() error {
	if n.shardHTTP != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.shardHTTP.Shutdown(ctx)
	}
	if n.shardListener != nil {
		n.shardListener.Close()
	}
	if err := n.tg.Stop(); err != nil {
		return err
	}
	if n.Overlay != nil {
		n.Overlay.Close()
	}
	if n.Manager != nil {
		if err := n.Manager.Close(); err != nil {
			return err
		}
	}
	if n.log != nil {
		return n.log.Close()
	}
	return nil
}
