package escrow

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ListingLen is the exact byte size of a persisted listing record:
// 4 pubkeys, 4 u64 counters, 5 single-byte fields, the fee amount and the
// x402 payload hash. Records shorter than this are rejected.
const ListingLen = 32 + 32 + 32 + 32 + 8 + 8 + 8 + 8 + 1 + 1 + 1 + 1 + 1 + 8 + 32

// ListingStatus is the lifecycle state of a listing. The numeric values are
// the on-wire encoding and must not change. Status only moves forward:
// AwaitingDeposit -> Active -> Completed, with cancellation allowed from
// AwaitingDeposit and Active. Completed and Cancelled are terminal.
type ListingStatus uint8

const (
	StatusAwaitingDeposit ListingStatus = 0
	StatusActive          ListingStatus = 1
	StatusCompleted       ListingStatus = 2
	StatusCancelled       ListingStatus = 3
)

func (s ListingStatus) String() string {
	switch s {
	case StatusAwaitingDeposit:
		return "AwaitingDeposit"
	case StatusActive:
		return "Active"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	}
	return fmt.Sprintf("ListingStatus(%d)", uint8(s))
}

// ListingStatusFromByte maps the persisted byte back to a status variant.
func ListingStatusFromByte(raw uint8) (ListingStatus, bool) {
	switch ListingStatus(raw) {
	case StatusAwaitingDeposit, StatusActive, StatusCompleted, StatusCancelled:
		return ListingStatus(raw), true
	}
	return 0, false
}

// FeePaymentMethod selects how the listing fee was paid at creation.
type FeePaymentMethod uint8

const (
	FeeNativeSol FeePaymentMethod = 0
	FeeX402      FeePaymentMethod = 1
)

func (m FeePaymentMethod) String() string {
	switch m {
	case FeeNativeSol:
		return "NativeSol"
	case FeeX402:
		return "X402"
	}
	return fmt.Sprintf("FeePaymentMethod(%d)", uint8(m))
}

// FeePaymentMethodFromByte maps the wire byte to a method variant. Unknown
// values are rejected at the instruction boundary.
func FeePaymentMethodFromByte(raw uint8) (FeePaymentMethod, bool) {
	switch FeePaymentMethod(raw) {
	case FeeNativeSol, FeeX402:
		return FeePaymentMethod(raw), true
	}
	return 0, false
}

const flagAllowPartial = 0b0000_0001

// Listing is the persistent record backing one OTC offer. All numeric fields
// are little-endian on the wire; field order matches the layout constant.
type Listing struct {
	Seller           solana.PublicKey
	BaseMint         solana.PublicKey
	QuoteMint        solana.PublicKey
	VaultAuthority   solana.PublicKey
	PricePerToken    uint64
	Quantity         uint64
	Filled           uint64
	ListingID        uint64
	Flags            uint8
	VaultBump        uint8
	Status           ListingStatus
	BaseDecimals     uint8
	FeePaymentMethod FeePaymentMethod
	FeeAmountPaid    uint64
	X402PayloadHash  [32]byte
}

// AllowPartial reports whether the listing may be filled in more than one
// purchase (flag bit 0).
func (l *Listing) AllowPartial() bool {
	return l.Flags&flagAllowPartial != 0
}

// Remaining is the only quantity ever movable out of the vault.
func (l *Listing) Remaining() uint64 {
	if l.Filled > l.Quantity {
		return 0
	}
	return l.Quantity - l.Filled
}

// DecodeListing parses a persisted listing record. The record must be at
// least ListingLen bytes; anything shorter is an account layout violation,
// anything unparseable is invalid data.
func DecodeListing(data []byte) (*Listing, error) {
	if len(data) < ListingLen {
		return nil, ErrAccountLengthMismatch
	}

	dec := bin.NewBorshDecoder(data)
	var listing Listing
	var err error

	if err = dec.Decode(&listing.Seller); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if err = dec.Decode(&listing.BaseMint); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if err = dec.Decode(&listing.QuoteMint); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if err = dec.Decode(&listing.VaultAuthority); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if listing.PricePerToken, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if listing.Quantity, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if listing.Filled, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if listing.ListingID, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if listing.Flags, err = dec.ReadByte(); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if listing.VaultBump, err = dec.ReadByte(); err != nil {
		return nil, ErrInvalidInstructionData
	}
	rawStatus, err := dec.ReadByte()
	if err != nil {
		return nil, ErrInvalidInstructionData
	}
	// Reads are lenient: an unknown status byte surfaces as Cancelled and
	// the fee-method byte is taken as-is. The program never writes such
	// values; only instruction input re-validates them.
	status, ok := ListingStatusFromByte(rawStatus)
	if !ok {
		status = StatusCancelled
	}
	listing.Status = status
	if listing.BaseDecimals, err = dec.ReadByte(); err != nil {
		return nil, ErrInvalidInstructionData
	}
	rawMethod, err := dec.ReadByte()
	if err != nil {
		return nil, ErrInvalidInstructionData
	}
	listing.FeePaymentMethod = FeePaymentMethod(rawMethod)
	if listing.FeeAmountPaid, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, ErrInvalidInstructionData
	}
	hash, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, ErrInvalidInstructionData
	}
	copy(listing.X402PayloadHash[:], hash)

	return &listing, nil
}

// EncodeListing serializes a listing to its fixed ListingLen layout.
func EncodeListing(listing *Listing) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(ListingLen)
	enc := bin.NewBorshEncoder(buf)

	fields := []error{
		enc.WriteBytes(listing.Seller.Bytes(), false),
		enc.WriteBytes(listing.BaseMint.Bytes(), false),
		enc.WriteBytes(listing.QuoteMint.Bytes(), false),
		enc.WriteBytes(listing.VaultAuthority.Bytes(), false),
		enc.WriteUint64(listing.PricePerToken, bin.LE),
		enc.WriteUint64(listing.Quantity, bin.LE),
		enc.WriteUint64(listing.Filled, bin.LE),
		enc.WriteUint64(listing.ListingID, bin.LE),
		enc.WriteByte(listing.Flags),
		enc.WriteByte(listing.VaultBump),
		enc.WriteByte(uint8(listing.Status)),
		enc.WriteByte(listing.BaseDecimals),
		enc.WriteByte(uint8(listing.FeePaymentMethod)),
		enc.WriteUint64(listing.FeeAmountPaid, bin.LE),
		enc.WriteBytes(listing.X402PayloadHash[:], false),
	}
	for _, err := range fields {
		if err != nil {
			return nil, ErrInvalidInstructionData
		}
	}

	return buf.Bytes(), nil
}

// loadListing decodes a listing from its backing account, first checking
// that the account is owned by this program.
func loadListing(programID solana.PublicKey, listingInfo *AccountRef) (*Listing, error) {
	if !listingInfo.Owner.Equals(programID) {
		return nil, ErrIncorrectProgramID
	}
	return DecodeListing(listingInfo.Data)
}

// storeListing writes the listing back into its account in place.
func storeListing(listingInfo *AccountRef, listing *Listing) error {
	if len(listingInfo.Data) < ListingLen {
		return ErrAccountLengthMismatch
	}
	encoded, err := EncodeListing(listing)
	if err != nil {
		return err
	}
	copy(listingInfo.Data, encoded)
	return nil
}
