package client

import (
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/escrow/backend/internal/escrow"
)

// Instruction builders. Account order is part of the program ABI and must
// match what the handlers consume.

func NewInitializeListingInstruction(
	programID solana.PublicKey,
	seller solana.PublicKey,
	listing solana.PublicKey,
	vaultAuthority solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
	baseMint solana.PublicKey,
	quoteMint solana.PublicKey,
	args escrow.InitializeListingArgs,
) (solana.Instruction, error) {
	data, err := escrow.EncodeInitializeListing(args)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(seller, true, true),
		solana.NewAccountMeta(listing, true, false),
		solana.NewAccountMeta(vaultAuthority, false, false),
		solana.NewAccountMeta(vaultTokenAccount, false, false),
		solana.NewAccountMeta(baseMint, false, false),
		solana.NewAccountMeta(quoteMint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}

	return solana.NewInstruction(programID, accounts, data), nil
}

func NewDepositTokensInstruction(
	programID solana.PublicKey,
	seller solana.PublicKey,
	listing solana.PublicKey,
	sellerTokenAccount solana.PublicKey,
	vaultAuthority solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(seller, true, true),
		solana.NewAccountMeta(listing, true, false),
		solana.NewAccountMeta(sellerTokenAccount, true, false),
		solana.NewAccountMeta(vaultAuthority, false, false),
		solana.NewAccountMeta(vaultTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	return solana.NewInstruction(programID, accounts, escrow.EncodeDepositTokens())
}

func NewPurchaseInstruction(
	programID solana.PublicKey,
	buyer solana.PublicKey,
	listing solana.PublicKey,
	sellerQuoteAccount solana.PublicKey,
	buyerQuoteAccount solana.PublicKey,
	buyerBaseAccount solana.PublicKey,
	vaultAuthority solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
	quantity uint64,
) (solana.Instruction, error) {
	data, err := escrow.EncodePurchase(quantity)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(buyer, true, true),
		solana.NewAccountMeta(listing, true, false),
		solana.NewAccountMeta(sellerQuoteAccount, true, false),
		solana.NewAccountMeta(buyerQuoteAccount, true, false),
		solana.NewAccountMeta(buyerBaseAccount, true, false),
		solana.NewAccountMeta(vaultAuthority, false, false),
		solana.NewAccountMeta(vaultTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	return solana.NewInstruction(programID, accounts, data), nil
}

func NewCancelListingInstruction(
	programID solana.PublicKey,
	seller solana.PublicKey,
	listing solana.PublicKey,
	vaultAuthority solana.PublicKey,
	vaultTokenAccount solana.PublicKey,
	sellerTokenAccount solana.PublicKey,
) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(seller, true, true),
		solana.NewAccountMeta(listing, true, false),
		solana.NewAccountMeta(vaultAuthority, false, false),
		solana.NewAccountMeta(vaultTokenAccount, true, false),
		solana.NewAccountMeta(sellerTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}

	return solana.NewInstruction(programID, accounts, escrow.EncodeCancelListing())
}

// VaultAddresses bundles the two derived addresses a listing needs: the
// custody authority and its associated token account for the base mint.
type VaultAddresses struct {
	Authority         solana.PublicKey
	AuthorityBump     uint8
	VaultTokenAccount solana.PublicKey
}

func DeriveVaultAddresses(programID, seller, baseMint solana.PublicKey, listingID uint64) (VaultAddresses, error) {
	authority, bump, err := escrow.FindVaultAuthority(programID, seller, listingID)
	if err != nil {
		return VaultAddresses{}, err
	}
	vaultToken, _, err := solana.FindAssociatedTokenAddress(authority, baseMint)
	if err != nil {
		return VaultAddresses{}, err
	}
	return VaultAddresses{
		Authority:         authority,
		AuthorityBump:     bump,
		VaultTokenAccount: vaultToken,
	}, nil
}
