package escrow

import (
	"github.com/gagliardetto/solana-go"
)

// Stateless account predicates. Each maps to exactly one error kind so a
// failed invocation is diagnosable from its code alone. Handlers re-run
// these on every invocation: the account table is untrusted input and
// cross-account consistency cannot be assumed from the instruction.

func assertSigner(account *AccountRef) error {
	if !account.IsSigner {
		return ErrMissingRequiredSignature
	}
	return nil
}

func assertTokenAccountOwner(account *TokenAccount, owner solana.PublicKey) error {
	if !account.Owner.Equals(owner) {
		return ErrIncorrectAuthority
	}
	return nil
}

func assertTokenAccountMint(account *TokenAccount, mint solana.PublicKey) error {
	if !account.Mint.Equals(mint) {
		return ErrMintMismatch
	}
	return nil
}

func assertVaultAuthorityAccount(listing *Listing, supplied *AccountRef) error {
	if !supplied.Key.Equals(listing.VaultAuthority) {
		return ErrIncorrectAuthority
	}
	return nil
}

func assertTokenProgram(account *AccountRef) error {
	if !account.Key.Equals(solana.TokenProgramID) {
		return ErrIncorrectProgramID
	}
	return nil
}
