package escrow

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestListingLen(t *testing.T) {
	if ListingLen != 205 {
		t.Fatalf("ListingLen = %d, want 205", ListingLen)
	}
}

func TestListingEncodeDecodeRoundTrip(t *testing.T) {
	original := &Listing{
		Seller:           solana.NewWallet().PublicKey(),
		BaseMint:         solana.NewWallet().PublicKey(),
		QuoteMint:        solana.NewWallet().PublicKey(),
		VaultAuthority:   solana.NewWallet().PublicKey(),
		PricePerToken:    10_000_000,
		Quantity:         1_000_000_000,
		Filled:           300_000_000,
		ListingID:        42,
		Flags:            flagAllowPartial,
		VaultBump:        254,
		Status:           StatusActive,
		BaseDecimals:     9,
		FeePaymentMethod: FeeX402,
		FeeAmountPaid:    100_000_000_000,
	}
	for i := range original.X402PayloadHash {
		original.X402PayloadHash[i] = byte(i)
	}

	encoded, err := EncodeListing(original)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	if len(encoded) != ListingLen {
		t.Fatalf("encoded length = %d, want %d", len(encoded), ListingLen)
	}

	decoded, err := DecodeListing(encoded)
	if err != nil {
		t.Fatalf("DecodeListing: %v", err)
	}
	if *decoded != *original {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestDecodeListingRejectsShortRecord(t *testing.T) {
	_, err := DecodeListing(make([]byte, ListingLen-1))
	if !errors.Is(err, ErrAccountLengthMismatch) {
		t.Fatalf("err = %v, want ErrAccountLengthMismatch", err)
	}
}

func TestDecodeListingUnknownStatusReadsAsCancelled(t *testing.T) {
	listing := &Listing{Status: StatusActive, FeePaymentMethod: FeeNativeSol}
	encoded, err := EncodeListing(listing)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	encoded[162] = 9 // status byte follows 4 pubkeys, 4 u64s, flags, bump
	decoded, err := DecodeListing(encoded)
	if err != nil {
		t.Fatalf("DecodeListing: %v", err)
	}
	if decoded.Status != StatusCancelled {
		t.Fatalf("status = %v, want StatusCancelled", decoded.Status)
	}
}

func TestDecodeListingKeepsUnknownFeeMethod(t *testing.T) {
	listing := &Listing{Status: StatusAwaitingDeposit, FeePaymentMethod: FeeX402}
	encoded, err := EncodeListing(listing)
	if err != nil {
		t.Fatalf("EncodeListing: %v", err)
	}
	encoded[164] = 7
	decoded, err := DecodeListing(encoded)
	if err != nil {
		t.Fatalf("DecodeListing: %v", err)
	}
	if decoded.FeePaymentMethod != FeePaymentMethod(7) {
		t.Fatalf("fee method = %v, want FeePaymentMethod(7)", decoded.FeePaymentMethod)
	}
}

func TestListingRemaining(t *testing.T) {
	listing := &Listing{Quantity: 100, Filled: 30}
	if got := listing.Remaining(); got != 70 {
		t.Fatalf("Remaining = %d, want 70", got)
	}
	listing.Filled = 100
	if got := listing.Remaining(); got != 0 {
		t.Fatalf("Remaining = %d, want 0", got)
	}
}

func TestListingAllowPartial(t *testing.T) {
	listing := &Listing{}
	if listing.AllowPartial() {
		t.Fatal("AllowPartial true with no flags set")
	}
	listing.Flags = flagAllowPartial
	if !listing.AllowPartial() {
		t.Fatal("AllowPartial false with flag bit set")
	}
}
