package escrow

import (
	"errors"
	"testing"
)

func TestDecodeInstructionEmptyPayload(t *testing.T) {
	if _, err := DecodeInstruction(nil); !errors.Is(err, ErrInvalidInstructionData) {
		t.Fatalf("err = %v, want ErrInvalidInstructionData", err)
	}
}

func TestDecodeInstructionUnknownTag(t *testing.T) {
	if _, err := DecodeInstruction([]byte{9}); !errors.Is(err, ErrInvalidInstructionData) {
		t.Fatalf("err = %v, want ErrInvalidInstructionData", err)
	}
}

func TestInitializeListingRoundTrip(t *testing.T) {
	payload := "payment-proof-tx:abc123"
	args := InitializeListingArgs{
		ListingID:        42,
		PricePerToken:    10_000_000,
		Quantity:         1_000_000_000,
		AllowPartial:     true,
		FeePaymentMethod: uint8(FeeX402),
		X402Payload:      &payload,
	}
	encoded, err := EncodeInitializeListing(args)
	if err != nil {
		t.Fatalf("EncodeInitializeListing: %v", err)
	}

	decoded, err := DecodeInstruction(encoded)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if decoded.Tag != TagInitializeListing || decoded.Initialize == nil {
		t.Fatalf("decoded = %+v, want initialize variant", decoded)
	}
	got := decoded.Initialize
	if got.ListingID != args.ListingID || got.PricePerToken != args.PricePerToken ||
		got.Quantity != args.Quantity || got.AllowPartial != args.AllowPartial ||
		got.FeePaymentMethod != args.FeePaymentMethod {
		t.Fatalf("decoded args = %+v, want %+v", got, args)
	}
	if got.X402Payload == nil || *got.X402Payload != payload {
		t.Fatalf("payload = %v, want %q", got.X402Payload, payload)
	}
}

func TestInitializeListingWithoutPayload(t *testing.T) {
	encoded, err := EncodeInitializeListing(InitializeListingArgs{
		ListingID:        1,
		PricePerToken:    5,
		Quantity:         10,
		FeePaymentMethod: uint8(FeeNativeSol),
	})
	if err != nil {
		t.Fatalf("EncodeInitializeListing: %v", err)
	}
	decoded, err := DecodeInstruction(encoded)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if decoded.Initialize.X402Payload != nil {
		t.Fatalf("payload = %q, want absent", *decoded.Initialize.X402Payload)
	}
}

func TestDecodeInitializeRejectsBadBool(t *testing.T) {
	encoded, err := EncodeInitializeListing(InitializeListingArgs{
		ListingID:     1,
		PricePerToken: 5,
		Quantity:      10,
	})
	if err != nil {
		t.Fatalf("EncodeInitializeListing: %v", err)
	}
	encoded[25] = 2 // allow_partial byte follows tag + three u64s
	if _, err := DecodeInstruction(encoded); !errors.Is(err, ErrInvalidInstructionData) {
		t.Fatalf("err = %v, want ErrInvalidInstructionData", err)
	}
}

func TestDecodeInitializeRejectsTruncatedArgs(t *testing.T) {
	encoded, err := EncodeInitializeListing(InitializeListingArgs{
		ListingID:     1,
		PricePerToken: 5,
		Quantity:      10,
	})
	if err != nil {
		t.Fatalf("EncodeInitializeListing: %v", err)
	}
	if _, err := DecodeInstruction(encoded[:12]); !errors.Is(err, ErrInvalidInstructionData) {
		t.Fatalf("err = %v, want ErrInvalidInstructionData", err)
	}
}

func TestDecodeInstructionRejectsTrailingBytes(t *testing.T) {
	purchase, err := EncodePurchase(300_000_000)
	if err != nil {
		t.Fatalf("EncodePurchase: %v", err)
	}

	cases := [][]byte{
		{uint8(TagDepositTokens), 0xFF},
		{uint8(TagCancelListing), 0, 1},
		append(purchase, 0xAA),
	}
	for _, data := range cases {
		if _, err := DecodeInstruction(data); !errors.Is(err, ErrInvalidInstructionData) {
			t.Fatalf("DecodeInstruction(%v): err = %v, want ErrInvalidInstructionData", data, err)
		}
	}
}

func TestPurchaseRoundTrip(t *testing.T) {
	encoded, err := EncodePurchase(300_000_000)
	if err != nil {
		t.Fatalf("EncodePurchase: %v", err)
	}
	decoded, err := DecodeInstruction(encoded)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if decoded.Tag != TagPurchase || decoded.Purchase == nil || decoded.Purchase.Quantity != 300_000_000 {
		t.Fatalf("decoded = %+v, want purchase of 300000000", decoded)
	}
}

func TestSingleByteInstructions(t *testing.T) {
	deposit, err := DecodeInstruction(EncodeDepositTokens())
	if err != nil {
		t.Fatalf("DecodeInstruction(deposit): %v", err)
	}
	if deposit.Tag != TagDepositTokens {
		t.Fatalf("tag = %d, want TagDepositTokens", deposit.Tag)
	}

	cancel, err := DecodeInstruction(EncodeCancelListing())
	if err != nil {
		t.Fatalf("DecodeInstruction(cancel): %v", err)
	}
	if cancel.Tag != TagCancelListing {
		t.Fatalf("tag = %d, want TagCancelListing", cancel.Tag)
	}
}
