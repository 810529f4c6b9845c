package escrow

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

var vaultSeedPrefix = []byte("vault")

// VaultAuthority is the derived, key-less custody identity controlling a
// listing's vault token account. It can only be asserted by re-presenting
// its exact derivation seeds to the host's signed-invocation primitive;
// the type is opaque so a handler cannot fabricate one from a raw address.
type VaultAuthority struct {
	key   solana.PublicKey
	seeds [][]byte
}

// Key is the derived custody address.
func (va VaultAuthority) Key() solana.PublicKey {
	return va.key
}

// SignerSeeds is the seed tuple, bump included, handed to the host when a
// transfer must be authorized on behalf of the vault.
func (va VaultAuthority) SignerSeeds() [][]byte {
	return va.seeds
}

// FindVaultAuthority searches for the custody address of (seller, listingID)
// under programID. Used once at listing creation; the returned bump is
// persisted so later invocations can re-derive without searching.
func FindVaultAuthority(programID, seller solana.PublicKey, listingID uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{vaultSeedPrefix, seller.Bytes(), u64LE(listingID)},
		programID,
	)
}

// DeriveVaultAuthority re-derives the custody authority from the persisted
// (seller, listing_id, bump) tuple. The result must reproduce the listing's
// stored vault_authority exactly, or the operation aborts before any
// transfer is attempted.
func DeriveVaultAuthority(programID solana.PublicKey, listing *Listing) (VaultAuthority, error) {
	seeds := [][]byte{
		vaultSeedPrefix,
		listing.Seller.Bytes(),
		u64LE(listing.ListingID),
		{listing.VaultBump},
	}
	key, err := solana.CreateProgramAddress(seeds, programID)
	if err != nil {
		return VaultAuthority{}, ErrIncorrectAuthority
	}
	if !key.Equals(listing.VaultAuthority) {
		return VaultAuthority{}, ErrIncorrectAuthority
	}
	return VaultAuthority{key: key, seeds: seeds}, nil
}

func u64LE(value uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return buf
}
