package client

import (
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/escrow/backend/internal/escrow"
)

func TestInitializeListingInstructionLayout(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("8DbZKwhFKq1Zi7HGSKfs6AsqS5CLWNCPZkQFuMKsntVt")
	seller := solana.NewWallet().PublicKey()
	listing := solana.NewWallet().PublicKey()
	baseMint := solana.NewWallet().PublicKey()
	quoteMint := solana.NewWallet().PublicKey()

	vault, err := DeriveVaultAddresses(programID, seller, baseMint, 42)
	if err != nil {
		t.Fatalf("DeriveVaultAddresses: %v", err)
	}

	ix, err := NewInitializeListingInstruction(
		programID, seller, listing,
		vault.Authority, vault.VaultTokenAccount,
		baseMint, quoteMint,
		escrow.InitializeListingArgs{
			ListingID:        42,
			PricePerToken:    10_000_000,
			Quantity:         1_000_000_000,
			FeePaymentMethod: uint8(escrow.FeeNativeSol),
		},
	)
	if err != nil {
		t.Fatalf("NewInitializeListingInstruction: %v", err)
	}

	if !ix.ProgramID().Equals(programID) {
		t.Fatalf("program id = %s, want %s", ix.ProgramID(), programID)
	}

	accounts := ix.Accounts()
	wantKeys := []solana.PublicKey{
		seller, listing, vault.Authority, vault.VaultTokenAccount,
		baseMint, quoteMint, solana.SystemProgramID,
	}
	if len(accounts) != len(wantKeys) {
		t.Fatalf("account count = %d, want %d", len(accounts), len(wantKeys))
	}
	for i, meta := range accounts {
		if !meta.PublicKey.Equals(wantKeys[i]) {
			t.Fatalf("account[%d] = %s, want %s", i, meta.PublicKey, wantKeys[i])
		}
	}
	if !accounts[0].IsSigner || !accounts[0].IsWritable {
		t.Fatal("seller must be a writable signer")
	}
	if accounts[2].IsSigner {
		t.Fatal("vault authority must not be marked signer")
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("ix.Data: %v", err)
	}
	decoded, err := escrow.DecodeInstruction(data)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if decoded.Tag != escrow.TagInitializeListing || decoded.Initialize.ListingID != 42 {
		t.Fatalf("decoded = %+v, want initialize of listing 42", decoded)
	}
}

func TestPurchaseInstructionLayout(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("8DbZKwhFKq1Zi7HGSKfs6AsqS5CLWNCPZkQFuMKsntVt")
	buyer := solana.NewWallet().PublicKey()
	listing := solana.NewWallet().PublicKey()
	sellerQuote := solana.NewWallet().PublicKey()
	buyerQuote := solana.NewWallet().PublicKey()
	buyerBase := solana.NewWallet().PublicKey()
	vaultAuthority := solana.NewWallet().PublicKey()
	vaultToken := solana.NewWallet().PublicKey()

	ix, err := NewPurchaseInstruction(
		programID, buyer, listing,
		sellerQuote, buyerQuote, buyerBase,
		vaultAuthority, vaultToken,
		300_000_000,
	)
	if err != nil {
		t.Fatalf("NewPurchaseInstruction: %v", err)
	}

	accounts := ix.Accounts()
	if len(accounts) != 8 {
		t.Fatalf("account count = %d, want 8", len(accounts))
	}
	if !accounts[0].PublicKey.Equals(buyer) || !accounts[0].IsSigner {
		t.Fatal("buyer must be the first account and a signer")
	}
	if !accounts[7].PublicKey.Equals(solana.TokenProgramID) {
		t.Fatalf("last account = %s, want token program", accounts[7].PublicKey)
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("ix.Data: %v", err)
	}
	decoded, err := escrow.DecodeInstruction(data)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if decoded.Tag != escrow.TagPurchase || decoded.Purchase.Quantity != 300_000_000 {
		t.Fatalf("decoded = %+v, want purchase of 300000000", decoded)
	}
}

func TestSingleByteInstructionData(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("8DbZKwhFKq1Zi7HGSKfs6AsqS5CLWNCPZkQFuMKsntVt")
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	c := solana.NewWallet().PublicKey()
	d := solana.NewWallet().PublicKey()
	e := solana.NewWallet().PublicKey()

	deposit := NewDepositTokensInstruction(programID, a, b, c, d, e)
	data, err := deposit.Data()
	if err != nil {
		t.Fatalf("deposit.Data: %v", err)
	}
	if len(data) != 1 || data[0] != uint8(escrow.TagDepositTokens) {
		t.Fatalf("deposit data = %v, want [1]", data)
	}

	cancel := NewCancelListingInstruction(programID, a, b, c, d, e)
	data, err = cancel.Data()
	if err != nil {
		t.Fatalf("cancel.Data: %v", err)
	}
	if len(data) != 1 || data[0] != uint8(escrow.TagCancelListing) {
		t.Fatalf("cancel data = %v, want [3]", data)
	}
}
