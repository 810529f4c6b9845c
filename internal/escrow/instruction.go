package escrow

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
)

// InstructionTag is the leading discriminant byte of an instruction payload.
type InstructionTag uint8

const (
	TagInitializeListing InstructionTag = 0
	TagDepositTokens     InstructionTag = 1
	TagPurchase          InstructionTag = 2
	TagCancelListing     InstructionTag = 3
)

// InitializeListingArgs carries the parameters of a new listing.
type InitializeListingArgs struct {
	ListingID        uint64
	PricePerToken    uint64
	Quantity         uint64
	AllowPartial     bool
	FeePaymentMethod uint8
	X402Payload      *string // borsh Option<String>
}

// PurchaseArgs carries the base quantity a buyer wants to take.
type PurchaseArgs struct {
	Quantity uint64
}

// Instruction is one decoded instruction payload. Exactly one of the
// variant pointers matching Tag is populated.
type Instruction struct {
	Tag        InstructionTag
	Initialize *InitializeListingArgs
	Purchase   *PurchaseArgs
}

// DecodeInstruction parses the borsh-encoded instruction payload: a u8
// variant tag followed by the variant's fields. Any malformed or trailing
// input maps to InvalidInstructionData.
func DecodeInstruction(data []byte) (*Instruction, error) {
	dec := bin.NewBorshDecoder(data)
	tag, err := dec.ReadByte()
	if err != nil {
		return nil, ErrInvalidInstructionData
	}

	var instruction *Instruction
	switch InstructionTag(tag) {
	case TagInitializeListing:
		args, err := decodeInitializeArgs(dec)
		if err != nil {
			return nil, err
		}
		instruction = &Instruction{Tag: TagInitializeListing, Initialize: args}
	case TagDepositTokens:
		instruction = &Instruction{Tag: TagDepositTokens}
	case TagPurchase:
		quantity, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, ErrInvalidInstructionData
		}
		instruction = &Instruction{Tag: TagPurchase, Purchase: &PurchaseArgs{Quantity: quantity}}
	case TagCancelListing:
		instruction = &Instruction{Tag: TagCancelListing}
	default:
		return nil, ErrInvalidInstructionData
	}

	// The payload must be consumed exactly; trailing bytes are malformed.
	if dec.Remaining() != 0 {
		return nil, ErrInvalidInstructionData
	}
	return instruction, nil
}

func decodeInitializeArgs(dec *bin.Decoder) (*InitializeListingArgs, error) {
	var args InitializeListingArgs
	var err error

	if args.ListingID, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if args.PricePerToken, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, ErrInvalidInstructionData
	}
	if args.Quantity, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, ErrInvalidInstructionData
	}

	rawBool, err := dec.ReadByte()
	if err != nil || rawBool > 1 {
		return nil, ErrInvalidInstructionData
	}
	args.AllowPartial = rawBool == 1

	if args.FeePaymentMethod, err = dec.ReadByte(); err != nil {
		return nil, ErrInvalidInstructionData
	}

	// Option<String>: one presence byte, then u32 length + utf8 bytes.
	present, err := dec.ReadByte()
	if err != nil || present > 1 {
		return nil, ErrInvalidInstructionData
	}
	if present == 1 {
		length, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return nil, ErrInvalidInstructionData
		}
		raw, err := dec.ReadNBytes(int(length))
		if err != nil {
			return nil, ErrInvalidInstructionData
		}
		payload := string(raw)
		args.X402Payload = &payload
	}

	return &args, nil
}

// EncodeInitializeListing produces the wire payload for listing creation.
func EncodeInitializeListing(args InitializeListingArgs) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteByte(uint8(TagInitializeListing)); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(args.ListingID, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(args.PricePerToken, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(args.Quantity, bin.LE); err != nil {
		return nil, err
	}
	allowPartial := uint8(0)
	if args.AllowPartial {
		allowPartial = 1
	}
	if err := enc.WriteByte(allowPartial); err != nil {
		return nil, err
	}
	if err := enc.WriteByte(args.FeePaymentMethod); err != nil {
		return nil, err
	}
	if args.X402Payload == nil {
		if err := enc.WriteByte(0); err != nil {
			return nil, err
		}
	} else {
		if err := enc.WriteByte(1); err != nil {
			return nil, err
		}
		if err := enc.WriteUint32(uint32(len(*args.X402Payload)), bin.LE); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes([]byte(*args.X402Payload), false); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// EncodeDepositTokens produces the wire payload for a deposit.
func EncodeDepositTokens() []byte {
	return []byte{uint8(TagDepositTokens)}
}

// EncodePurchase produces the wire payload for a purchase.
func EncodePurchase(quantity uint64) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteByte(uint8(TagPurchase)); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(quantity, bin.LE); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeCancelListing produces the wire payload for a cancellation.
func EncodeCancelListing() []byte {
	return []byte{uint8(TagCancelListing)}
}
