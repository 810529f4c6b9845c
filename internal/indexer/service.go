package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/coldbell/escrow/backend/internal/config"
	"github.com/coldbell/escrow/backend/internal/escrow"
)

type Service struct {
	cfg    config.IndexerConfig
	rpc    *rpc.Client
	store  *Store
	logger *slog.Logger
}

func New(cfg config.IndexerConfig, logger *slog.Logger) (*Service, error) {
	store, err := NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &Service{
		cfg:    cfg,
		rpc:    rpc.New(cfg.RPCURL),
		store:  store,
		logger: logger,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	s.logger.Info("indexer started",
		"rpc", s.cfg.RPCURL,
		"db_driver", "postgres",
		"commitment", s.cfg.Commitment,
		"program", s.cfg.EscrowProgramID,
	)

	if err := s.syncOnce(ctx); err != nil {
		s.logger.Error("initial sync failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("indexer stopped")
			return nil
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				s.logger.Error("sync failed", "err", err)
			}
		}
	}
}

func (s *Service) syncOnce(ctx context.Context) error {
	slot, err := s.rpc.GetSlot(ctx, s.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}

	accounts, err := s.fetchListingAccounts(ctx)
	if err != nil {
		return err
	}

	indexed := 0
	err = s.store.WithTx(ctx, func(tx *Tx) error {
		for _, item := range accounts {
			if item == nil || item.Account == nil {
				continue
			}
			listing, err := escrow.DecodeListing(item.Account.Data.GetBinary())
			if err != nil {
				s.logger.Warn("failed to decode listing account",
					"pubkey", item.Pubkey,
					"slot", slot,
					"err", err,
				)
				continue
			}
			if err := s.store.UpsertListingTx(ctx, tx, item.Pubkey, slot, listing); err != nil {
				return fmt.Errorf("upsert listing %s: %w", item.Pubkey, err)
			}
			indexed++
		}
		return s.store.UpsertSyncStateTx(ctx, tx, slot)
	})
	if err != nil {
		return err
	}

	s.logger.Info("sync complete", "slot", slot, "listings", indexed)
	return nil
}

// fetchListingAccounts scans every program account of listing size, retrying
// transient RPC failures with exponential backoff up to the configured cap.
func (s *Service) fetchListingAccounts(ctx context.Context) (rpc.GetProgramAccountsResult, error) {
	size := uint64(escrow.ListingLen)
	opts := &rpc.GetProgramAccountsOpts{
		Commitment: s.cfg.Commitment,
		Filters: []rpc.RPCFilter{
			{DataSize: size},
		},
	}

	delay := s.cfg.RPCRetryBaseDelay
	var lastErr error
	for attempt := 0; attempt < s.cfg.RPCMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.cfg.RPCRetryMaxDelay {
				delay = s.cfg.RPCRetryMaxDelay
			}
		}

		accounts, err := s.rpc.GetProgramAccountsWithOpts(ctx, s.cfg.EscrowProgramID, opts)
		if err == nil {
			return accounts, nil
		}
		lastErr = err
		s.logger.Warn("program account scan failed",
			"program", s.cfg.EscrowProgramID,
			"attempt", attempt+1,
			"err", err,
		)
	}
	return nil, fmt.Errorf("scan listing accounts for program %s: %w", s.cfg.EscrowProgramID, lastErr)
}
