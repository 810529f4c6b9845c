package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/escrow/backend/internal/escrow"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *DB
}

type DB struct {
	raw *sql.DB
}

type Tx struct {
	raw *sql.Tx
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.raw.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{raw: tx}, nil
}

func (db *DB) Close() error {
	return db.raw.Close()
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.raw.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.raw.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.raw.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (tx *Tx) Commit() error {
	return tx.raw.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.raw.Rollback()
}

func rebindPostgresPlaceholders(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 16)

	arg := 1
	inSingleQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '\'' {
			out.WriteByte(ch)
			if inSingleQuote {
				// SQL escape: two single quotes inside a string literal.
				if i+1 < len(query) && query[i+1] == '\'' {
					out.WriteByte(query[i+1])
					i++
					continue
				}
				inSingleQuote = false
			} else {
				inSingleQuote = true
			}
			continue
		}

		if ch == '?' && !inSingleQuote {
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(arg))
			arg++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func NewStore(dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: &DB{raw: db}}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			id BIGINT PRIMARY KEY CHECK (id = 1),
			last_slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS listings (
			pubkey TEXT PRIMARY KEY,
			listing_id TEXT NOT NULL,
			seller TEXT NOT NULL,
			base_mint TEXT NOT NULL,
			quote_mint TEXT NOT NULL,
			vault_authority TEXT NOT NULL,
			price_per_token TEXT NOT NULL,
			quantity TEXT NOT NULL,
			filled TEXT NOT NULL,
			allow_partial INTEGER NOT NULL,
			vault_bump INTEGER NOT NULL,
			status TEXT NOT NULL,
			base_decimals INTEGER NOT NULL,
			fee_payment_method TEXT NOT NULL,
			fee_amount_paid TEXT NOT NULL,
			x402_payload_hash TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_seller_status ON listings(seller, status);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_base_mint_status ON listings(base_mint, status);`,
		`CREATE TABLE IF NOT EXISTS listing_events (
			id BIGSERIAL PRIMARY KEY,
			listing_pubkey TEXT NOT NULL,
			listing_id TEXT NOT NULL,
			seller TEXT NOT NULL,
			event_type TEXT NOT NULL,
			prev_status TEXT NOT NULL,
			next_status TEXT NOT NULL,
			prev_filled TEXT NOT NULL,
			next_filled TEXT NOT NULL,
			slot BIGINT NOT NULL,
			recorded_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_listing_events_listing_time ON listing_events(listing_pubkey, recorded_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_listing_events_seller_time ON listing_events(seller, recorded_at DESC);`,
	}

	for _, query := range ddl {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertSyncStateTx(ctx context.Context, tx *Tx, slot uint64) error {
	now := time.Now().Unix()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_slot, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_slot = excluded.last_slot,
			updated_at = excluded.updated_at
	`, int64(slot), now)
	return err
}

type listingSnapshot struct {
	Status string
	Filled string
}

// UpsertListingTx writes the latest decoded listing and, when the status or
// fill level moved since the previous row, appends a listing_events entry
// describing the transition. First sight of a listing produces a "created"
// event from the zero snapshot.
func (s *Store) UpsertListingTx(ctx context.Context, tx *Tx, pubkey solana.PublicKey, slot uint64, listing *escrow.Listing) error {
	raw, err := json.Marshal(listingJSON(listing))
	if err != nil {
		return err
	}

	pubkeyText := pubkey.String()
	next := listingSnapshot{
		Status: listing.Status.String(),
		Filled: strconv.FormatUint(listing.Filled, 10),
	}
	prev, err := s.getListingSnapshotTx(ctx, tx, pubkeyText)
	if err != nil {
		return err
	}

	now := time.Now().Unix()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (
			pubkey, listing_id, seller, base_mint, quote_mint, vault_authority,
			price_per_token, quantity, filled, allow_partial, vault_bump, status,
			base_decimals, fee_payment_method, fee_amount_paid, x402_payload_hash,
			raw_json, slot, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET
			listing_id = excluded.listing_id,
			seller = excluded.seller,
			base_mint = excluded.base_mint,
			quote_mint = excluded.quote_mint,
			vault_authority = excluded.vault_authority,
			price_per_token = excluded.price_per_token,
			quantity = excluded.quantity,
			filled = excluded.filled,
			allow_partial = excluded.allow_partial,
			vault_bump = excluded.vault_bump,
			status = excluded.status,
			base_decimals = excluded.base_decimals,
			fee_payment_method = excluded.fee_payment_method,
			fee_amount_paid = excluded.fee_amount_paid,
			x402_payload_hash = excluded.x402_payload_hash,
			raw_json = excluded.raw_json,
			slot = excluded.slot,
			updated_at = excluded.updated_at
	`,
		pubkeyText,
		strconv.FormatUint(listing.ListingID, 10),
		listing.Seller.String(),
		listing.BaseMint.String(),
		listing.QuoteMint.String(),
		listing.VaultAuthority.String(),
		strconv.FormatUint(listing.PricePerToken, 10),
		strconv.FormatUint(listing.Quantity, 10),
		next.Filled,
		boolToInt(listing.AllowPartial()),
		int(listing.VaultBump),
		next.Status,
		int(listing.BaseDecimals),
		listing.FeePaymentMethod.String(),
		strconv.FormatUint(listing.FeeAmountPaid, 10),
		fmt.Sprintf("%x", listing.X402PayloadHash),
		string(raw),
		int64(slot),
		now,
	)
	if err != nil {
		return err
	}

	if prev == nil {
		return s.insertListingEventTx(ctx, tx, pubkeyText, listing, "created",
			listingSnapshot{Status: "", Filled: "0"}, next, slot, now)
	}
	if prev.Status == next.Status && prev.Filled == next.Filled {
		return nil
	}

	eventType := "fill"
	if prev.Status != next.Status {
		eventType = "status_change"
	}
	return s.insertListingEventTx(ctx, tx, pubkeyText, listing, eventType, *prev, next, slot, now)
}

func (s *Store) getListingSnapshotTx(ctx context.Context, tx *Tx, pubkey string) (*listingSnapshot, error) {
	row := tx.QueryRowContext(ctx, `SELECT status, filled FROM listings WHERE pubkey = ?`, pubkey)
	var snapshot listingSnapshot
	err := row.Scan(&snapshot.Status, &snapshot.Filled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *Store) insertListingEventTx(
	ctx context.Context,
	tx *Tx,
	listingPubkey string,
	listing *escrow.Listing,
	eventType string,
	prev listingSnapshot,
	next listingSnapshot,
	slot uint64,
	recordedAt int64,
) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO listing_events (
			listing_pubkey, listing_id, seller, event_type,
			prev_status, next_status, prev_filled, next_filled,
			slot, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		listingPubkey,
		strconv.FormatUint(listing.ListingID, 10),
		listing.Seller.String(),
		eventType,
		prev.Status,
		next.Status,
		prev.Filled,
		next.Filled,
		int64(slot),
		recordedAt,
	)
	return err
}

// listingJSON is the raw_json shape: pubkeys as base58, u64s as strings so
// javascript consumers never hit precision loss.
func listingJSON(listing *escrow.Listing) map[string]any {
	return map[string]any{
		"seller":             listing.Seller.String(),
		"base_mint":          listing.BaseMint.String(),
		"quote_mint":         listing.QuoteMint.String(),
		"vault_authority":    listing.VaultAuthority.String(),
		"price_per_token":    strconv.FormatUint(listing.PricePerToken, 10),
		"quantity":           strconv.FormatUint(listing.Quantity, 10),
		"filled":             strconv.FormatUint(listing.Filled, 10),
		"listing_id":         strconv.FormatUint(listing.ListingID, 10),
		"allow_partial":      listing.AllowPartial(),
		"vault_bump":         listing.VaultBump,
		"status":             listing.Status.String(),
		"base_decimals":      listing.BaseDecimals,
		"fee_payment_method": listing.FeePaymentMethod.String(),
		"fee_amount_paid":    strconv.FormatUint(listing.FeeAmountPaid, 10),
		"x402_payload_hash":  fmt.Sprintf("%x", listing.X402PayloadHash),
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
