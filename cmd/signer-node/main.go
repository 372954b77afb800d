// Command signer-node runs a single per-reward-cycle signer engine: it
// loads configuration and the signer's encrypted key, opens the block
// store, dials the chain RPC and bulletin, and drives the engine's event
// loop until the cycle is torn down or the process receives a signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coresig/signer/bulletin"
	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/chainclient"
	"github.com/coresig/signer/config"
	"github.com/coresig/signer/crypto"
	"github.com/coresig/signer/frost"
	_ "github.com/coresig/signer/frost/plugins/refsig"
	"github.com/coresig/signer/keystore"
	"github.com/coresig/signer/retry"
	"github.com/coresig/signer/signer"
	"github.com/coresig/signer/store"
	"github.com/sirupsen/logrus"
)

func main() {
	cfgPath := flag.String("config", "signer.json", "path to config file")
	genKey := flag.Bool("genkey", false, "generate a new signer key and exit")
	rewardCycle := flag.Uint64("reward-cycle", 0, "reward cycle this process serves")
	pluginName := flag.String("plugin", "refsig", "registered frost.Factory to drive DKG/signing rounds")
	flag.Parse()

	if *genKey {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		path := "signer.keystore.json"
		if err := keystore.SaveKeyFromEnv(path, priv); err != nil {
			log.Fatalf("save keystore: %v", err)
		}
		fmt.Printf("Generated key. Signer id (compressed pubkey): %s\n", pub.Hex())
		fmt.Printf("Saved to: %s\n", path)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	priv, err := keystore.LoadKeyFromEnv(cfg.KeystorePath)
	if err != nil {
		log.Fatalf("load keystore: %v", err)
	}
	selfPub := priv.Public()
	selfAddress := chain.Address(selfPub.Address())

	log := logrus.NewEntry(logrus.StandardLogger()).WithFields(logrus.Fields{
		"signer_id":    selfPub.Hex(),
		"reward_cycle": *rewardCycle,
	})

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := store.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Fatalf("open block store: %v", err)
	}
	defer db.Close()
	blockStore := store.NewLevelBlockStore(db)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	retryPolicy := retry.DefaultPolicy()
	chainClient := chainclient.NewHTTPChainClient(cfg.ChainRPCEndpoint, cfg.ChainRPCAuthToken, tlsCfg, retryPolicy)
	cachedChain, err := chainclient.NewCachingChainClient(chainClient, 8, 10*time.Second)
	if err != nil {
		log.Fatalf("build caching chain client: %v", err)
	}
	bulletinClient := bulletin.NewHTTPBulletin(cfg.BulletinEndpoint, tlsCfg, retryPolicy)

	cycle, selfID, err := buildCycleContext(cfg, *rewardCycle, selfAddress)
	if err != nil {
		log.Fatalf("build cycle context: %v", err)
	}

	numKeys := uint32(cfg.NumSigners())
	party, err := frost.Open(*pluginName, selfID, numKeys, uint32(cfg.Threshold()), uint32(cfg.DKGThreshold()))
	if err != nil {
		log.Fatalf("open frost plugin %q: %v", *pluginName, err)
	}

	results := make(chan []frost.OperationResult, 16)

	engine := &signer.SignerEngine{
		Cycle:         cycle,
		Store:         blockStore,
		Chain:         cachedChain,
		Bulletin:      bulletinClient,
		Party:         party,
		Gate: &signer.BlockGate{Auditor: &signer.TxAuditor{
			Chain:                 cachedChain,
			RetryPolicy:           retryPolicy,
			RewardCycle:           *rewardCycle,
			Mainnet:               cfg.Mainnet,
			SignerAddressToID:     cycle.SignerAddressToID,
			RewardCycleArgEnabled: cfg.RewardCycleArgEnabled,
		}},
		RetryPolicy:   retryPolicy,
		FeeMicroUnits: cfg.TxFeeMicroUnits,
		SelfAddress:   selfAddress,
		PrivateKey:    priv,
		GCKeepCycles:  cfg.GCKeepCycles,
		Results:       results,
		Log:           log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan signer.Event, 64)

	var wg sync.WaitGroup
	wg.Add(4)
	go statusTicker(ctx, &wg, events, 5*time.Second)
	go bulletinPoller(ctx, &wg, events, bulletinClient, log, 2*time.Second)
	go minerListener(ctx, &wg, events)
	go resultLogger(ctx, &wg, results, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("signer-node running for reward cycle %d, coordinator-eligible id %d", *rewardCycle, selfID)
runLoop:
	for {
		select {
		case ev := <-events:
			if err := engine.HandleEvent(ctx, ev); err != nil {
				log.WithError(err).Warn("event handling failed")
			}
			if engine.Cycle.State == signer.StateTenureExceeded {
				log.Println("tenure exceeded; shutting down")
				break runLoop
			}
		case <-sigCh:
			log.Println("received shutdown signal")
			break runLoop
		}
	}

	cancel()
	wg.Wait()
	log.Println("shutdown complete")
}

func loadConfig(path string) (*config.SignerConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// buildCycleContext resolves every registered signer's address, assigns
// it a stable index by its position in the config list, and wires up the
// CycleContext's coordinator selector and stale-view governor.
func buildCycleContext(cfg *config.SignerConfig, rewardCycle uint64, selfAddress chain.Address) (*signer.CycleContext, uint32, error) {
	if uint64(len(cfg.RegisteredSigners)) > math.MaxUint32 {
		return nil, 0, fmt.Errorf("registered_signers overflows 32 bits: %d entries", len(cfg.RegisteredSigners))
	}
	signerAddressToID := make(map[chain.Address]uint32, len(cfg.RegisteredSigners))
	signerPublicKeys := make(map[uint32]chain.Point, len(cfg.RegisteredSigners))
	candidates := make([]signer.Candidate, 0, len(cfg.RegisteredSigners))
	var selfID uint32
	var selfFound bool

	for i, hexKey := range cfg.RegisteredSigners {
		pub, err := crypto.PubKeyFromHex(hexKey)
		if err != nil {
			return nil, 0, fmt.Errorf("registered_signers[%d]: %w", i, err)
		}
		addr := chain.Address(pub.Address())
		id := uint32(i)
		signerAddressToID[addr] = id

		var point chain.Point
		copy(point[:], pub)
		candidates = append(candidates, signer.Candidate{SignerID: id, PublicKey: point})
		signerPublicKeys[id] = point

		if addr == selfAddress {
			selfID = id
			selfFound = true
		}
	}
	if !selfFound {
		return nil, 0, fmt.Errorf("signer address %s not found among registered_signers", selfAddress)
	}

	var nackPct *uint32
	var backOff time.Duration
	if p := cfg.StaleNodeNackPolicy; p != nil {
		pct := p.NackThresholdPercent
		nackPct = &pct
		backOff = p.BackOffDuration()
	}

	ctx := signer.NewCycleContext(signer.CycleContextParams{
		RewardCycle:          rewardCycle,
		SignerID:             selfID,
		Mainnet:              cfg.Mainnet,
		NumKeys:              uint32(len(candidates)),
		SignerAddressToID:    signerAddressToID,
		SignerPublicKeys:     signerPublicKeys,
		Coordinators:         candidates,
		CoordinatorTimeout:   cfg.EventTimeout,
		NackThresholdPercent: nackPct,
		BackOffDuration:      backOff,
	})
	return ctx, selfID, nil
}

// statusTicker feeds a StatusCheck event at a fixed interval, driving the
// engine's DKG update pass even when no other event arrives.
func statusTicker(ctx context.Context, wg *sync.WaitGroup, out chan<- signer.Event, interval time.Duration) {
	defer wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			select {
			case out <- signer.Event{Kind: signer.EventStatusCheck}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// bulletinPoller keeps transport I/O off the engine's single consumer
// loop, pushing PeerMessages events for the main loop to drain in receipt
// order. The transport this polls is an external collaborator; this loop
// only demonstrates how a concrete Bulletin feeds the engine.
func bulletinPoller(ctx context.Context, wg *sync.WaitGroup, out chan<- signer.Event, b bulletin.Bulletin, log *logrus.Entry, interval time.Duration) {
	defer wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// A real poller tracks a per-slot read cursor against the
			// bulletin transport (an external collaborator) and
			// pushes an EventPeerMessages batch here.
		}
	}
}

// minerListener would subscribe to the miner's proposed-block stream
// (also an external collaborator) and push EventProposedBlocks events.
// Left as a no-op placeholder: this binary exists to demonstrate engine
// wiring, not to reimplement the miner transport.
func minerListener(ctx context.Context, wg *sync.WaitGroup, out chan<- signer.Event) {
	defer wg.Done()
	<-ctx.Done()
}

// resultLogger is this binary's operation-result subscriber: it drains
// each completed batch the engine forwards and logs the outcome kinds.
func resultLogger(ctx context.Context, wg *sync.WaitGroup, in <-chan []frost.OperationResult, log *logrus.Entry) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-in:
			for _, r := range batch {
				log.WithField("kind", r.Kind).Info("operation completed")
			}
		}
	}
}
