package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

var ErrNotFound = errors.New("indexer: not found")

type ListingFilter struct {
	Seller    string
	BaseMint  string
	QuoteMint string
	Status    string
	Limit     int
	Offset    int
}

type ListingRecord struct {
	Pubkey           string `json:"pubkey"`
	ListingID        string `json:"listing_id"`
	Seller           string `json:"seller"`
	BaseMint         string `json:"base_mint"`
	QuoteMint        string `json:"quote_mint"`
	VaultAuthority   string `json:"vault_authority"`
	PricePerToken    string `json:"price_per_token"`
	Quantity         string `json:"quantity"`
	Filled           string `json:"filled"`
	AllowPartial     bool   `json:"allow_partial"`
	VaultBump        uint8  `json:"vault_bump"`
	Status           string `json:"status"`
	BaseDecimals     uint8  `json:"base_decimals"`
	FeePaymentMethod string `json:"fee_payment_method"`
	FeeAmountPaid    string `json:"fee_amount_paid"`
	X402PayloadHash  string `json:"x402_payload_hash"`
	Slot             uint64 `json:"slot"`
	UpdatedAt        int64  `json:"updated_at"`
}

type ListingEventFilter struct {
	ListingPubkey string
	Seller        string
	EventType     string
	Limit         int
	Offset        int
}

type ListingEventRecord struct {
	ID            int64  `json:"id"`
	ListingPubkey string `json:"listing_pubkey"`
	ListingID     string `json:"listing_id"`
	Seller        string `json:"seller"`
	EventType     string `json:"event_type"`
	PrevStatus    string `json:"prev_status"`
	NextStatus    string `json:"next_status"`
	PrevFilled    string `json:"prev_filled"`
	NextFilled    string `json:"next_filled"`
	Slot          uint64 `json:"slot"`
	RecordedAt    int64  `json:"recorded_at"`
}

const listingColumns = `
	pubkey,
	listing_id,
	seller,
	base_mint,
	quote_mint,
	vault_authority,
	price_per_token,
	quantity,
	filled,
	allow_partial,
	vault_bump,
	status,
	base_decimals,
	fee_payment_method,
	fee_amount_paid,
	x402_payload_hash,
	slot,
	updated_at
`

func (s *Store) ListListings(ctx context.Context, filter ListingFilter) ([]ListingRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	clauses := []string{"1 = 1"}
	args := make([]any, 0, 5)

	if filter.Seller != "" {
		clauses = append(clauses, "seller = ?")
		args = append(args, filter.Seller)
	}
	if filter.BaseMint != "" {
		clauses = append(clauses, "base_mint = ?")
		args = append(args, filter.BaseMint)
	}
	if filter.QuoteMint != "" {
		clauses = append(clauses, "quote_mint = ?")
		args = append(args, filter.QuoteMint)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM listings
		WHERE %s
		ORDER BY updated_at DESC, pubkey ASC
		LIMIT ? OFFSET ?
	`, listingColumns, strings.Join(clauses, " AND "))
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]ListingRecord, 0, limit)
	for rows.Next() {
		item, err := scanListing(rows.Scan)
		if err != nil {
			return nil, 0, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	return items, limit, offset, nil
}

func (s *Store) GetListing(ctx context.Context, pubkey string) (ListingRecord, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM listings
		WHERE pubkey = ?
	`, listingColumns), pubkey)

	item, err := scanListing(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ListingRecord{}, ErrNotFound
	}
	if err != nil {
		return ListingRecord{}, err
	}
	return item, nil
}

func scanListing(scan func(dest ...any) error) (ListingRecord, error) {
	var item ListingRecord
	var allowPartial int
	var vaultBump int
	var baseDecimals int
	var slot int64
	err := scan(
		&item.Pubkey,
		&item.ListingID,
		&item.Seller,
		&item.BaseMint,
		&item.QuoteMint,
		&item.VaultAuthority,
		&item.PricePerToken,
		&item.Quantity,
		&item.Filled,
		&allowPartial,
		&vaultBump,
		&item.Status,
		&baseDecimals,
		&item.FeePaymentMethod,
		&item.FeeAmountPaid,
		&item.X402PayloadHash,
		&slot,
		&item.UpdatedAt,
	)
	if err != nil {
		return ListingRecord{}, err
	}
	item.AllowPartial = allowPartial != 0
	item.VaultBump = uint8(vaultBump)
	item.BaseDecimals = uint8(baseDecimals)
	item.Slot = uint64(slot)
	return item, nil
}

func (s *Store) ListListingEvents(ctx context.Context, filter ListingEventFilter) ([]ListingEventRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	clauses := []string{"1 = 1"}
	args := make([]any, 0, 5)

	if filter.ListingPubkey != "" {
		clauses = append(clauses, "listing_pubkey = ?")
		args = append(args, filter.ListingPubkey)
	}
	if filter.Seller != "" {
		clauses = append(clauses, "seller = ?")
		args = append(args, filter.Seller)
	}
	if filter.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, filter.EventType)
	}

	query := fmt.Sprintf(`
		SELECT
			id,
			listing_pubkey,
			listing_id,
			seller,
			event_type,
			prev_status,
			next_status,
			prev_filled,
			next_filled,
			slot,
			recorded_at
		FROM listing_events
		WHERE %s
		ORDER BY recorded_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, strings.Join(clauses, " AND "))
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]ListingEventRecord, 0, limit)
	for rows.Next() {
		var item ListingEventRecord
		var slot int64
		if err := rows.Scan(
			&item.ID,
			&item.ListingPubkey,
			&item.ListingID,
			&item.Seller,
			&item.EventType,
			&item.PrevStatus,
			&item.NextStatus,
			&item.PrevFilled,
			&item.NextFilled,
			&slot,
			&item.RecordedAt,
		); err != nil {
			return nil, 0, 0, err
		}
		item.Slot = uint64(slot)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	return items, limit, offset, nil
}

func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
