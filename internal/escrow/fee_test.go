package escrow

import (
	"errors"
	"math"
	"testing"
)

func TestListingFee(t *testing.T) {
	cases := []struct {
		name     string
		price    uint64
		quantity uint64
		want     uint64
	}{
		{"one percent of gross", 10_000_000, 1_000_000_000, 100_000_000_000},
		{"floors the quotient", 3, 33, 0},
		{"just under one unit", 99, 1, 0},
		{"exact division", 100, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ListingFee(tc.price, tc.quantity)
			if err != nil {
				t.Fatalf("ListingFee(%d, %d): %v", tc.price, tc.quantity, err)
			}
			if got != tc.want {
				t.Fatalf("ListingFee(%d, %d) = %d, want %d", tc.price, tc.quantity, got, tc.want)
			}
		})
	}
}

func TestListingFeeWideIntermediate(t *testing.T) {
	// price * quantity overflows u64 but the fee itself still fits.
	got, err := ListingFee(math.MaxUint64, 100)
	if err != nil {
		t.Fatalf("ListingFee: %v", err)
	}
	if got != math.MaxUint64 {
		t.Fatalf("ListingFee = %d, want %d", got, uint64(math.MaxUint64))
	}
}

func TestListingFeeOverflow(t *testing.T) {
	_, err := ListingFee(math.MaxUint64, 200)
	if !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("err = %v, want ErrAmountOverflow", err)
	}
}

func TestQuoteAmount(t *testing.T) {
	cases := []struct {
		name     string
		quantity uint64
		price    uint64
		decimals uint8
		want     uint64
	}{
		{"whole token", 1_000_000_000, 10_000_000, 9, 10_000_000},
		{"partial fill", 300_000_000, 10_000_000, 9, 3_000_000},
		{"truncates toward zero", 19, 5, 1, 9},
		{"zero decimals", 3, 5, 0, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := QuoteAmount(tc.quantity, tc.price, tc.decimals)
			if err != nil {
				t.Fatalf("QuoteAmount: %v", err)
			}
			if got != tc.want {
				t.Fatalf("QuoteAmount = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestQuoteAmountRoundsToZero(t *testing.T) {
	_, err := QuoteAmount(1, 5, 1)
	if !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("err = %v, want ErrAmountOverflow", err)
	}
}

func TestQuoteAmountOverflow(t *testing.T) {
	_, err := QuoteAmount(math.MaxUint64, math.MaxUint64, 0)
	if !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("err = %v, want ErrAmountOverflow", err)
	}
}

func TestVerifyX402PaymentRejectsEmptyPayload(t *testing.T) {
	_, err := VerifyX402Payment("", 100)
	if !errors.Is(err, ErrInvalidX402Proof) {
		t.Fatalf("err = %v, want ErrInvalidX402Proof", err)
	}
}

func TestVerifyX402PaymentHashesPayload(t *testing.T) {
	first, err := VerifyX402Payment("payment-proof-tx:abc123", 100)
	if err != nil {
		t.Fatalf("VerifyX402Payment: %v", err)
	}
	second, err := VerifyX402Payment("payment-proof-tx:abc123", 999)
	if err != nil {
		t.Fatalf("VerifyX402Payment: %v", err)
	}
	if first != second {
		t.Fatal("same payload produced different digests")
	}
	other, err := VerifyX402Payment("payment-proof-tx:other", 100)
	if err != nil {
		t.Fatalf("VerifyX402Payment: %v", err)
	}
	if first == other {
		t.Fatal("different payloads produced the same digest")
	}
	if first == ([32]byte{}) {
		t.Fatal("digest is all zeros")
	}
}
