package escrow

import "fmt"

// Code is the stable numeric identifier of a program error. Custom codes
// match the on-chain error enum one to one so off-chain tooling can map
// transaction failures back to a cause.
type Code uint32

const (
	CodeInvalidInstructionData Code = iota
	CodeAccountLengthMismatch
	CodeAlreadyInitialized
	CodeIncorrectAuthority
	CodeInvalidListingStatus
	CodeAmountOverflow
	CodeMintMismatch
	CodeInsufficientQuantity
	CodePartialFillDisabled
	CodeInvalidX402Proof
	CodeX402AmountMismatch
)

// Error is a program-level failure with a stable code. Errors are never
// coerced into one another: the first violated condition aborts the
// invocation and surfaces unchanged.
type Error struct {
	Code Code
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("escrow: %s (code %d)", e.msg, e.Code)
}

// Is matches on the stable code so errors.Is works against the sentinels.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == e.Code
}

var (
	ErrInvalidInstructionData = &Error{CodeInvalidInstructionData, "invalid instruction data"}
	ErrAccountLengthMismatch  = &Error{CodeAccountLengthMismatch, "account length mismatch"}
	ErrAlreadyInitialized     = &Error{CodeAlreadyInitialized, "listing already initialized"}
	ErrIncorrectAuthority     = &Error{CodeIncorrectAuthority, "incorrect authority provided"}
	ErrInvalidListingStatus   = &Error{CodeInvalidListingStatus, "invalid listing status for action"}
	ErrAmountOverflow         = &Error{CodeAmountOverflow, "amount overflow or invalid quantity"}
	ErrMintMismatch           = &Error{CodeMintMismatch, "token mint mismatch"}
	ErrInsufficientQuantity   = &Error{CodeInsufficientQuantity, "insufficient remaining quantity"}
	ErrPartialFillDisabled    = &Error{CodePartialFillDisabled, "partial fills disabled"}
	ErrInvalidX402Proof       = &Error{CodeInvalidX402Proof, "x402 payment proof missing or invalid"}
	ErrX402AmountMismatch     = &Error{CodeX402AmountMismatch, "x402 payment amount mismatch"}
)

// Host-level failures raised by the execution environment rather than the
// program itself. They surface unchanged, never remapped to custom codes.
var (
	ErrMissingRequiredSignature = &hostError{"missing required signature"}
	ErrIncorrectProgramID       = &hostError{"incorrect program id"}
	ErrInsufficientFunds        = &hostError{"insufficient funds"}
)

type hostError struct {
	msg string
}

func (e *hostError) Error() string {
	return "escrow: " + e.msg
}
