package escrow

import (
	"bytes"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// SPL token program account sizes.
const (
	TokenAccountLen = 165
	MintLen         = 82
)

// TokenAccount is the decoded state of an SPL token sub-account: the
// asset-specific balance holder used as a transfer source or destination.
type TokenAccount struct {
	Mint                 solana.PublicKey
	Owner                solana.PublicKey
	Amount               uint64
	DelegateOption       [4]byte
	Delegate             solana.PublicKey
	State                uint8
	IsNativeOption       [4]byte
	IsNative             uint64
	DelegatedAmount      uint64
	CloseAuthorityOption [4]byte
	CloseAuthority       solana.PublicKey
}

// Mint is the decoded definition of an SPL asset; only Decimals is read by
// this program, captured once at listing creation.
type Mint struct {
	MintAuthorityOption   [4]byte
	MintAuthority         solana.PublicKey
	Supply                uint64
	Decimals              uint8
	IsInitialized         uint8
	FreezeAuthorityOption [4]byte
	FreezeAuthority       solana.PublicKey
}

// UnpackTokenAccount parses a 165-byte SPL token account.
func UnpackTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountLen {
		return nil, ErrAccountLengthMismatch
	}
	var account TokenAccount
	if err := binary.Read(bytes.NewReader(data[:TokenAccountLen]), binary.LittleEndian, &account); err != nil {
		return nil, ErrInvalidInstructionData
	}
	return &account, nil
}

// UnpackMint parses an 82-byte SPL mint account.
func UnpackMint(data []byte) (*Mint, error) {
	if len(data) < MintLen {
		return nil, ErrAccountLengthMismatch
	}
	var mint Mint
	if err := binary.Read(bytes.NewReader(data[:MintLen]), binary.LittleEndian, &mint); err != nil {
		return nil, ErrInvalidInstructionData
	}
	return &mint, nil
}

// TokenRuntime is the token-standard collaborator the host supplies. Both
// calls run inside the enclosing atomic unit of work: if any later step of
// the invocation fails, the host rolls the transfer back with everything
// else.
//
// Transfer authorizes the movement with the authority account's own
// transaction signature; the host rejects it when the authority did not
// sign. TransferSigned authorizes it on behalf of a derived address by
// re-presenting its seed tuple; the host verifies computationally that the
// seeds reproduce the authority key under the calling program.
type TokenRuntime interface {
	Transfer(source, destination, authority *AccountRef, amount uint64) error
	TransferSigned(source, destination, authority *AccountRef, amount uint64, signerSeeds [][]byte) error
}
