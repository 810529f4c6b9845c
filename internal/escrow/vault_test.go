package escrow

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestVaultAuthorityRoundTrip(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("8DbZKwhFKq1Zi7HGSKfs6AsqS5CLWNCPZkQFuMKsntVt")
	seller := solana.NewWallet().PublicKey()
	const listingID = 42

	key, bump, err := FindVaultAuthority(programID, seller, listingID)
	if err != nil {
		t.Fatalf("FindVaultAuthority: %v", err)
	}

	listing := &Listing{
		Seller:         seller,
		VaultAuthority: key,
		ListingID:      listingID,
		VaultBump:      bump,
	}
	authority, err := DeriveVaultAuthority(programID, listing)
	if err != nil {
		t.Fatalf("DeriveVaultAuthority: %v", err)
	}
	if !authority.Key().Equals(key) {
		t.Fatalf("derived key %s, want %s", authority.Key(), key)
	}

	// The seed tuple must reproduce the key under the program.
	derived, err := solana.CreateProgramAddress(authority.SignerSeeds(), programID)
	if err != nil {
		t.Fatalf("CreateProgramAddress: %v", err)
	}
	if !derived.Equals(key) {
		t.Fatalf("seeds derive %s, want %s", derived, key)
	}
}

func TestDeriveVaultAuthorityRejectsTamperedKey(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("8DbZKwhFKq1Zi7HGSKfs6AsqS5CLWNCPZkQFuMKsntVt")
	seller := solana.NewWallet().PublicKey()

	key, bump, err := FindVaultAuthority(programID, seller, 7)
	if err != nil {
		t.Fatalf("FindVaultAuthority: %v", err)
	}

	listing := &Listing{
		Seller:         seller,
		VaultAuthority: solana.NewWallet().PublicKey(),
		ListingID:      7,
		VaultBump:      bump,
	}
	if _, err := DeriveVaultAuthority(programID, listing); !errors.Is(err, ErrIncorrectAuthority) {
		t.Fatalf("err = %v, want ErrIncorrectAuthority", err)
	}

	// A different listing id under the right bump must not reproduce the key.
	listing.VaultAuthority = key
	listing.ListingID = 8
	if _, err := DeriveVaultAuthority(programID, listing); !errors.Is(err, ErrIncorrectAuthority) {
		t.Fatalf("err = %v, want ErrIncorrectAuthority", err)
	}
}

func TestFindVaultAuthorityDistinctPerListing(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("8DbZKwhFKq1Zi7HGSKfs6AsqS5CLWNCPZkQFuMKsntVt")
	seller := solana.NewWallet().PublicKey()

	a, _, err := FindVaultAuthority(programID, seller, 1)
	if err != nil {
		t.Fatalf("FindVaultAuthority: %v", err)
	}
	b, _, err := FindVaultAuthority(programID, seller, 2)
	if err != nil {
		t.Fatalf("FindVaultAuthority: %v", err)
	}
	if a.Equals(b) {
		t.Fatal("different listing ids derived the same vault authority")
	}
}
