// Package main implements targetd, the difficulty-target daemon for the
// Verta network. It follows a full node over RPC and ZMQ, maintains the
// confirmed header index, computes the required target for each new tip,
// and publishes target and retarget events for downstream services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vertachain/vertad/internal/chainindex"
	"github.com/vertachain/vertad/internal/config"
	"github.com/vertachain/vertad/internal/consensus"
	"github.com/vertachain/vertad/internal/database"
	"github.com/vertachain/vertad/internal/database/influx"
	"github.com/vertachain/vertad/internal/database/postgres"
	"github.com/vertachain/vertad/internal/database/redis"
	"github.com/vertachain/vertad/internal/messaging"
	"github.com/vertachain/vertad/internal/node"
	"github.com/vertachain/vertad/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting targetd",
		"version", cfg.Version,
		"network", cfg.Network,
		"node_host", cfg.NodeRPCHost,
		"node_port", cfg.NodeRPCPort,
	)

	// Resolve consensus parameters for the configured network
	params, err := consensus.ParamsForNetwork(cfg.Network)
	if err != nil {
		logger.WithError(err).Error("unknown network")
		os.Exit(1)
	}
	if err := params.Validate(); err != nil {
		logger.WithError(err).Error("invalid consensus parameters")
		os.Exit(1)
	}

	// Create node RPC client
	nodeClient, err := node.NewRPCClient(
		cfg.NodeRPCHost,
		cfg.NodeRPCPort,
		cfg.NodeRPCUser,
		cfg.NodeRPCPassword,
	)
	if err != nil {
		logger.WithError(err).Error("failed to create node RPC client")
		os.Exit(1)
	}
	defer nodeClient.Close()

	// Test node connection with context
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()
	if err := nodeClient.Ping(pingCtx); err != nil {
		logger.WithError(err).Error("failed to connect to node")
		os.Exit(1)
	}
	logger.Info("connected to node")

	// Connect the storage backends
	db, err := database.NewManager(&database.Config{
		Postgres: &postgres.Config{URL: cfg.PostgresURL},
		Redis:    &redis.Config{URL: cfg.RedisURL},
		Influx: &influx.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		},
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect databases")
		os.Exit(1)
	}
	defer db.Close()

	// Create Kafka client and topic publisher
	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger.Logger)
	defer kafkaClient.Close()
	publisher := messaging.NewPublisher(kafkaClient, cfg.Network)

	// Create ZMQ notifier for push block notifications
	notifier, err := node.NewZMQNotifier(cfg.NodeZMQAddr, logger.Logger)
	if err != nil {
		logger.WithError(err).Error("failed to create ZMQ notifier")
		os.Exit(1)
	}
	defer notifier.Close()

	// Create the target follower
	follower := NewTargetFollower(cfg, logger, params, nodeClient, db, publisher, notifier)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start the follower
	go func() {
		if err := follower.Start(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("target follower failed")
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := follower.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}

	logger.Info("targetd stopped")
}

// TargetFollower tracks the node's best chain and keeps the required next
// target computed, cached, and published.
type TargetFollower struct {
	cfg       *config.Config
	logger    *log.Logger
	params    *consensus.Params
	node      node.RPCInterface
	db        *database.Manager
	publisher *messaging.Publisher
	notifier  *node.ZMQNotifier

	index *chainindex.Index

	// Channels
	blockCh chan struct{}
	done    chan struct{}
}

// NewTargetFollower creates a new target follower
func NewTargetFollower(
	cfg *config.Config,
	logger *log.Logger,
	params *consensus.Params,
	nodeClient node.RPCInterface,
	db *database.Manager,
	publisher *messaging.Publisher,
	notifier *node.ZMQNotifier,
) *TargetFollower {
	return &TargetFollower{
		cfg:       cfg,
		logger:    logger.WithComponent("follower").WithNetwork(params.Name),
		params:    params,
		node:      nodeClient,
		db:        db,
		publisher: publisher,
		notifier:  notifier,
		index:     chainindex.NewIndex(),
		blockCh:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start backfills the header index, then follows the chain until the
// context is cancelled, reacting to ZMQ notifications with a ticker poll
// as fallback.
func (tf *TargetFollower) Start(ctx context.Context) error {
	tf.logger.Info("target follower starting")

	if err := tf.backfill(ctx); err != nil {
		tf.logger.WithError(err).Error("failed to backfill header index")
		return err
	}

	if recent, err := tf.db.Retargets.ListRecentRetargets(ctx, 1); err != nil {
		tf.logger.WithError(err).Warn("failed to load retarget history")
	} else if len(recent) > 0 {
		tf.logger.Info("last recorded retarget",
			"height", recent[0].Height,
			"new_bits", uint32(recent[0].NewBits),
		)
	}

	if err := tf.publishNext(ctx); err != nil {
		tf.logger.WithError(err).Error("failed to publish initial target")
	}

	// ZMQ pushes block hashes; the handler only nudges the sync loop, the
	// headers themselves come over RPC in height order.
	if tf.notifier != nil {
		handler := node.NewBlockNotificationHandler(tf.logger.Logger)
		handler.SetNewBlockHandler(func(node.BlockNotification) error {
			select {
			case tf.blockCh <- struct{}{}:
			default:
			}
			return nil
		})

		if err := tf.notifier.Subscribe("hashblock"); err != nil {
			return err
		}
		if err := tf.notifier.Connect(); err != nil {
			return err
		}

		go func() {
			if err := tf.notifier.Listen(ctx, handler.HandleMessage); err != nil &&
				err != context.Canceled {
				tf.logger.WithError(err).Error("ZMQ listener stopped")
			}
		}()
	}

	ticker := time.NewTicker(tf.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tf.done:
			return nil
		case <-tf.blockCh:
			if err := tf.syncToTip(ctx); err != nil {
				tf.logger.WithError(err).Error("failed to sync after block notification")
			}
		case <-ticker.C:
			if err := tf.syncToTip(ctx); err != nil {
				tf.logger.WithError(err).Error("failed to sync on poll")
			}
		}
	}
}

// Shutdown gracefully stops the follower loop.
func (tf *TargetFollower) Shutdown(_ context.Context) error {
	tf.logger.Info("shutting down target follower")
	close(tf.done)
	return nil
}

// backfill fills the header index up to the node's current tip, reloading
// persisted headers first and fetching the remainder over RPC.
func (tf *TargetFollower) backfill(ctx context.Context) error {
	started := time.Now()

	nodeTip, err := tf.node.GetBlockCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to get node tip height: %w", err)
	}

	start := nodeTip - tf.cfg.BackfillDepth + 1
	if start < 0 {
		start = 0
	}

	if err := tf.reloadPersisted(ctx, start, nodeTip); err != nil {
		tf.logger.WithError(err).Warn("failed to reload persisted headers, falling back to RPC")
		tf.index = chainindex.NewIndex()
	}

	from := start
	if tip := tf.index.TipHeight(); tip >= 0 {
		from = tip + 1
	}

	fetched := int64(0)
	for height := from; height <= nodeTip; height++ {
		hash, err := tf.node.GetBlockHash(ctx, height)
		if err != nil {
			return fmt.Errorf("failed to get block hash at %d: %w", height, err)
		}
		header, err := tf.node.GetBlockHeader(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to get block header %s: %w", hash, err)
		}
		if err := tf.index.Append(header); err != nil {
			return fmt.Errorf("failed to index header at %d: %w", height, err)
		}
		tf.persistHeader(ctx, header)
		fetched++
	}

	// Stored headers below the retained window are never reloaded again;
	// drop them so the table tracks the backfill depth.
	if pruned, err := tf.db.Headers.PruneBelow(ctx, start); err != nil {
		tf.logger.WithError(err).Warn("failed to prune stored headers", "below_height", start)
	} else if pruned > 0 {
		tf.logger.Info("pruned stored headers", "below_height", start, "rows", pruned)
	}

	tf.logger.Info("header index backfilled",
		"base_height", tf.index.BaseHeight(),
		"tip_height", tf.index.TipHeight(),
		"fetched", fetched,
	)
	tf.logger.LogDuration("backfill", time.Since(started).Nanoseconds())
	return nil
}

// reloadPersisted loads contiguous stored headers in [start, end] into the
// index.
func (tf *TargetFollower) reloadPersisted(ctx context.Context, start, end int64) error {
	rows, err := tf.db.Headers.GetHeadersRange(ctx, start, end)
	if err != nil {
		return err
	}

	for _, row := range rows {
		header, err := headerFromRow(&row)
		if err != nil {
			return err
		}
		// The first gap or broken link ends the reload; the rest comes
		// over RPC.
		if err := tf.index.Append(header); err != nil {
			tf.logger.WithError(err).Warn("persisted headers not contiguous, continuing over RPC",
				"height", header.Height,
			)
			break
		}
	}

	if n := tf.index.Len(); n > 0 {
		tf.logger.Info("reloaded persisted headers", "count", n)
	}
	return nil
}

// syncToTip appends every block between the index tip and the node tip.
// A prev-hash mismatch means the chain reorganized under us, in which case
// the index is rebuilt from scratch.
func (tf *TargetFollower) syncToTip(ctx context.Context) error {
	nodeTip, err := tf.node.GetBlockCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to get node tip height: %w", err)
	}

	// When the heights already agree, one best-hash call settles whether
	// anything happened. A hash mismatch at equal height is a reorg the
	// append loop below would never see.
	if tip, ok := tf.index.TipHeader(); ok && tip.Height == nodeTip {
		bestHash, err := tf.node.GetBestBlockHash(ctx)
		if err != nil {
			return fmt.Errorf("failed to get best block hash: %w", err)
		}
		if bestHash == tip.Hash.String() {
			return nil
		}
		tf.logger.WithBlock(bestHash, nodeTip).Warn(
			"best hash diverged at tip height, rebuilding index",
			"indexed_tip", tip.Hash.String(),
		)
		return tf.rebuild(ctx)
	}

	for tf.index.TipHeight() < nodeTip {
		next := tf.index.TipHeight() + 1

		hash, err := tf.node.GetBlockHash(ctx, next)
		if err != nil {
			return fmt.Errorf("failed to get block hash at %d: %w", next, err)
		}
		header, err := tf.node.GetBlockHeader(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to get block header %s: %w", hash, err)
		}

		if tip, ok := tf.index.TipHeader(); ok && header.PrevHash != tip.Hash {
			tf.logger.WithBlock(header.Hash.String(), next).Warn(
				"chain reorganization detected, rebuilding index",
				"indexed_tip", tip.Hash.String(),
				"prev_hash", header.PrevHash.String(),
			)
			return tf.rebuild(ctx)
		}

		if err := tf.index.Append(header); err != nil {
			return fmt.Errorf("failed to index header at %d: %w", next, err)
		}

		if err := tf.connectHeader(ctx, header); err != nil {
			tf.logger.WithError(err).Error("failed to process connected header",
				"height", header.Height,
			)
		}
	}

	return nil
}

// rebuild discards the in-memory index and repopulates it from the node's
// current chain, then republishes the target for the new tip.
func (tf *TargetFollower) rebuild(ctx context.Context) error {
	tf.index = chainindex.NewIndex()
	if err := tf.backfill(ctx); err != nil {
		return err
	}
	return tf.publishNext(ctx)
}

// connectHeader persists a freshly indexed header, records any retarget it
// realized, and publishes the new tip and next target.
func (tf *TargetFollower) connectHeader(ctx context.Context, header chainindex.Header) error {
	tf.logger.LogBlockConnected(header.Hash.String(), header.Height, header.Bits)

	tf.persistHeader(ctx, header)

	difficulty := consensus.Difficulty(header.Bits, tf.params)
	tf.db.Influx.WriteChainTipMetric(tf.params.Name, header.Height, difficulty, header.Time)

	if err := tf.publisher.PublishChainTip(ctx, &messaging.ChainTipMessage{
		Height:      header.Height,
		Hash:        header.Hash.String(),
		PrevHash:    header.PrevHash.String(),
		Time:        header.Time,
		Bits:        header.Bits,
		Difficulty:  difficulty,
		ConnectedAt: time.Now().UTC(),
	}); err != nil {
		tf.logger.WithError(err).Error("failed to publish chain tip")
	}

	if consensus.IsRetargetHeight(tf.params, header.Height) {
		tf.recordRetarget(ctx, header)
	}

	return tf.publishNext(ctx)
}

// recordRetarget captures the adjustment a retarget block realized against
// its parent and fans it out to storage, metrics, and Kafka.
func (tf *TargetFollower) recordRetarget(ctx context.Context, header chainindex.Header) {
	parent := tf.index.PositionAt(header.Height - 1)
	if parent == nil {
		return
	}

	interval, timespan := consensus.RetargetSchedule(tf.params, header.Height)

	// The observed window is telemetry, not consensus: report the raw
	// parent-to-window-start span. Postgres may reach further back than
	// the in-memory index, so fall back to it for the window start.
	actualTimespan := int64(0)
	if first := parent.AncestorAt(header.Height - interval); first != nil {
		actualTimespan = parent.Time() - first.Time()
	} else if row, err := tf.db.Headers.GetHeaderByHeight(ctx, header.Height-interval); err == nil {
		actualTimespan = parent.Time() - row.Time
	}

	forkActivation := header.Height == tf.params.ForkOneHeight ||
		header.Height == tf.params.ForkTwoHeight

	tf.logger.LogRetarget(header.Height, parent.Bits(), header.Bits, actualTimespan, timespan)

	if err := tf.db.RecordRetarget(ctx, &postgres.Retarget{
		Height:         header.Height,
		OldBits:        int64(parent.Bits()),
		NewBits:        int64(header.Bits),
		ActualTimespan: actualTimespan,
		TargetTimespan: timespan,
		ForkActivation: forkActivation,
		OccurredAt:     time.Now().UTC(),
	}); err != nil {
		tf.logger.WithError(err).Error("failed to record retarget")
	}

	tf.db.Influx.WriteRetargetMetric(tf.params.Name, header.Height,
		parent.Bits(), header.Bits, actualTimespan, timespan)

	if tf.cfg.PublishRetarget {
		if err := tf.publisher.PublishRetargetEvent(ctx, &messaging.RetargetEventMessage{
			Height:         header.Height,
			OldBits:        parent.Bits(),
			NewBits:        header.Bits,
			OldDifficulty:  consensus.Difficulty(parent.Bits(), tf.params),
			NewDifficulty:  consensus.Difficulty(header.Bits, tf.params),
			ActualTimespan: actualTimespan,
			TargetTimespan: timespan,
			ForkActivation: forkActivation,
			OccurredAt:     time.Now().UTC(),
		}); err != nil {
			tf.logger.WithError(err).Error("failed to publish retarget event")
		}
	}
}

// publishNext computes the required target for the block extending the
// current tip, caches it, and publishes it. Republishing for an already
// published tip height is suppressed through Redis.
func (tf *TargetFollower) publishNext(ctx context.Context) error {
	tip, ok := tf.index.TipHeader()
	if !ok {
		return nil
	}
	nextHeight := tip.Height + 1

	if last, err := tf.db.Redis.GetLastPublishedHeight(ctx, tf.params.Name); err != nil {
		tf.logger.WithError(err).Warn("failed to read last published height")
	} else if tip.Height <= last {
		return nil
	}

	// A cached entry for the same tip hash means the computation already
	// ran for this exact chain state.
	var nextBits uint32
	computed := false
	if cached, ok, err := tf.db.Redis.GetNextTarget(ctx, tip.Hash.String()); err != nil {
		tf.logger.WithError(err).Warn("failed to read cached target")
	} else if ok && cached.Height == nextHeight {
		nextBits = cached.Bits
	} else {
		// The long observation window needs up to four intervals of
		// history; until the index reaches that far back, computing a
		// target would panic on a missing ancestor.
		interval, _ := consensus.RetargetSchedule(tf.params, nextHeight)
		if base := tf.index.BaseHeight(); base > 0 && nextHeight-base < 4*interval+1 {
			tf.logger.Warn("header index too shallow to compute target",
				"base_height", base,
				"next_height", nextHeight,
			)
			return nil
		}
		nextBits = consensus.NextWorkRequired(tf.index.Tip(), time.Now().Unix(), tf.params)
		computed = true
	}

	target, _, _ := consensus.CompactToBig(nextBits)
	difficulty := consensus.Difficulty(nextBits, tf.params)
	isRetarget := consensus.IsRetargetHeight(tf.params, nextHeight)

	tf.logger.LogTargetComputed(nextHeight, nextBits, difficulty, isRetarget)

	if computed {
		if err := tf.db.Redis.SetNextTarget(ctx, tip.Hash.String(), &redis.CachedTarget{
			Height:     nextHeight,
			Bits:       nextBits,
			Difficulty: difficulty,
			IsRetarget: isRetarget,
		}, tf.cfg.TargetCacheTTL); err != nil {
			tf.logger.WithError(err).Warn("failed to cache next target")
		}
	}

	tf.db.Influx.WriteTargetMetric(tf.params.Name, nextHeight, nextBits, difficulty, isRetarget)

	if err := tf.publisher.PublishTargetUpdate(ctx, &messaging.TargetUpdateMessage{
		Height:     nextHeight,
		TipHash:    tip.Hash.String(),
		TipHeight:  tip.Height,
		Bits:       nextBits,
		Target:     fmt.Sprintf("%064x", target),
		Difficulty: difficulty,
		IsRetarget: isRetarget,
		ComputedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to publish target update: %w", err)
	}

	if err := tf.db.Redis.SetLastPublishedHeight(ctx, tf.params.Name, tip.Height); err != nil {
		tf.logger.WithError(err).Warn("failed to record published height")
	}

	return nil
}

// headerFromRow converts a stored header row back into an index header.
func headerFromRow(row *postgres.Header) (chainindex.Header, error) {
	hash, err := chainhash.NewHashFromStr(row.Hash)
	if err != nil {
		return chainindex.Header{}, fmt.Errorf("corrupt stored hash %q: %w", row.Hash, err)
	}
	prevHash, err := chainhash.NewHashFromStr(row.PrevHash)
	if err != nil {
		return chainindex.Header{}, fmt.Errorf("corrupt stored prev hash %q: %w", row.PrevHash, err)
	}
	return chainindex.Header{
		Height:   row.Height,
		Hash:     *hash,
		PrevHash: *prevHash,
		Time:     row.Time,
		Bits:     uint32(row.Bits),
	}, nil
}

// persistHeader upserts a header row; storage failures are logged, not
// fatal, since the index remains authoritative for the session.
func (tf *TargetFollower) persistHeader(ctx context.Context, header chainindex.Header) {
	if err := tf.db.PersistHeader(ctx, &postgres.Header{
		Height:     header.Height,
		Hash:       header.Hash.String(),
		PrevHash:   header.PrevHash.String(),
		Time:       header.Time,
		Bits:       int64(header.Bits),
		Difficulty: consensus.Difficulty(header.Bits, tf.params),
		InsertedAt: time.Now().UTC(),
	}); err != nil {
		tf.logger.WithError(err).Error("failed to persist header", "height", header.Height)
	}
}
