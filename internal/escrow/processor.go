package escrow

import (
	"log/slog"
	"math"

	"github.com/gagliardetto/solana-go"
)

// Processor executes escrow instructions against the account table of one
// invocation. It holds no state of its own: everything lives in the
// externally supplied accounts, and the host serializes invocations that
// touch the same listing or vault.
type Processor struct {
	programID solana.PublicKey
	token     TokenRuntime
	logger    *slog.Logger
}

func NewProcessor(programID solana.PublicKey, token TokenRuntime, logger *slog.Logger) *Processor {
	return &Processor{
		programID: programID,
		token:     token,
		logger:    logger,
	}
}

// Process decodes one instruction payload and runs the matching handler.
// The whole call is one atomic unit of work: the host commits every
// mutation on success and rolls everything back on any error.
func (p *Processor) Process(accounts []*AccountRef, data []byte) error {
	instruction, err := DecodeInstruction(data)
	if err != nil {
		return err
	}

	switch instruction.Tag {
	case TagInitializeListing:
		return p.initializeListing(accounts, instruction.Initialize)
	case TagDepositTokens:
		return p.depositTokens(accounts)
	case TagPurchase:
		return p.purchaseTokens(accounts, instruction.Purchase.Quantity)
	case TagCancelListing:
		return p.cancelListing(accounts)
	}
	return ErrInvalidInstructionData
}

func (p *Processor) initializeListing(accounts []*AccountRef, args *InitializeListingArgs) error {
	if args.Quantity == 0 || args.PricePerToken == 0 {
		return ErrAmountOverflow
	}

	table := newAccountTable(accounts)
	sellerInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	listingInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	vaultAuthorityInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	vaultTokenInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	baseMintInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	quoteMintInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	systemProgramInfo, err := table.nextAccount()
	if err != nil {
		return err
	}

	if err := assertSigner(sellerInfo); err != nil {
		return err
	}
	if !listingInfo.Owner.Equals(p.programID) {
		return ErrIncorrectProgramID
	}
	for _, b := range listingInfo.Data {
		if b != 0 {
			return ErrAlreadyInitialized
		}
	}
	if !systemProgramInfo.Key.Equals(solana.SystemProgramID) {
		return ErrIncorrectProgramID
	}

	expectedAuthority, bump, err := FindVaultAuthority(p.programID, sellerInfo.Key, args.ListingID)
	if err != nil {
		return ErrIncorrectAuthority
	}
	if !vaultAuthorityInfo.Key.Equals(expectedAuthority) {
		return ErrIncorrectAuthority
	}

	expectedVault, _, err := solana.FindAssociatedTokenAddress(expectedAuthority, baseMintInfo.Key)
	if err != nil {
		return ErrMintMismatch
	}
	if !vaultTokenInfo.Key.Equals(expectedVault) {
		return ErrMintMismatch
	}

	baseMint, err := UnpackMint(baseMintInfo.Data)
	if err != nil {
		return err
	}

	feeAmount, err := ListingFee(args.PricePerToken, args.Quantity)
	if err != nil {
		return err
	}

	method, ok := FeePaymentMethodFromByte(args.FeePaymentMethod)
	if !ok {
		return ErrInvalidInstructionData
	}
	var payloadHash [32]byte
	switch method {
	case FeeX402:
		if args.X402Payload == nil {
			return ErrInvalidX402Proof
		}
		payloadHash, err = VerifyX402Payment(*args.X402Payload, feeAmount)
		if err != nil {
			return err
		}
	case FeeNativeSol:
		// Fee amount is recorded but no SOL moves on this path yet;
		// the transfer is tracked as future work.
	}

	var flags uint8
	if args.AllowPartial {
		flags = flagAllowPartial
	}

	listing := &Listing{
		Seller:           sellerInfo.Key,
		BaseMint:         baseMintInfo.Key,
		QuoteMint:        quoteMintInfo.Key,
		VaultAuthority:   vaultAuthorityInfo.Key,
		PricePerToken:    args.PricePerToken,
		Quantity:         args.Quantity,
		Filled:           0,
		ListingID:        args.ListingID,
		Flags:            flags,
		VaultBump:        bump,
		Status:           StatusAwaitingDeposit,
		BaseDecimals:     baseMint.Decimals,
		FeePaymentMethod: method,
		FeeAmountPaid:    feeAmount,
		X402PayloadHash:  payloadHash,
	}
	if err := storeListing(listingInfo, listing); err != nil {
		return err
	}

	p.logger.Info("listing initialized",
		"listing", listingInfo.Key,
		"seller", sellerInfo.Key,
		"listing_id", args.ListingID,
		"quantity", args.Quantity,
		"price_per_token", args.PricePerToken,
		"fee_method", method.String(),
		"fee_amount", feeAmount,
	)
	return nil
}

func (p *Processor) depositTokens(accounts []*AccountRef) error {
	table := newAccountTable(accounts)
	sellerInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	listingInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	sellerTokenInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	vaultAuthorityInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	vaultTokenInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	tokenProgramInfo, err := table.nextAccount()
	if err != nil {
		return err
	}

	if err := assertSigner(sellerInfo); err != nil {
		return err
	}

	listing, err := loadListing(p.programID, listingInfo)
	if err != nil {
		return err
	}
	if listing.Status != StatusAwaitingDeposit {
		return ErrInvalidListingStatus
	}
	if !sellerInfo.Key.Equals(listing.Seller) {
		return ErrIncorrectAuthority
	}

	sellerToken, err := UnpackTokenAccount(sellerTokenInfo.Data)
	if err != nil {
		return err
	}
	if err := assertTokenAccountOwner(sellerToken, sellerInfo.Key); err != nil {
		return err
	}
	if err := assertTokenAccountMint(sellerToken, listing.BaseMint); err != nil {
		return err
	}

	vaultToken, err := UnpackTokenAccount(vaultTokenInfo.Data)
	if err != nil {
		return err
	}
	if err := assertTokenAccountOwner(vaultToken, vaultAuthorityInfo.Key); err != nil {
		return err
	}
	if err := assertTokenAccountMint(vaultToken, listing.BaseMint); err != nil {
		return err
	}

	if err := assertVaultAuthorityAccount(listing, vaultAuthorityInfo); err != nil {
		return err
	}

	amount := listing.Quantity
	if sellerToken.Amount < amount {
		return ErrInsufficientFunds
	}

	// Seller owns the source, so the seller's own signature authorizes the
	// leg; no derived-authority signing is involved.
	err = p.executeTransfers(tokenProgramInfo, transferLeg{
		source:      sellerTokenInfo,
		destination: vaultTokenInfo,
		authority:   sellerInfo,
		amount:      amount,
	})
	if err != nil {
		return err
	}

	listing.Status = StatusActive
	if err := storeListing(listingInfo, listing); err != nil {
		return err
	}

	p.logger.Info("tokens deposited",
		"listing", listingInfo.Key,
		"seller", sellerInfo.Key,
		"amount", amount,
	)
	return nil
}

func (p *Processor) purchaseTokens(accounts []*AccountRef, quantity uint64) error {
	if quantity == 0 {
		return ErrAmountOverflow
	}

	table := newAccountTable(accounts)
	buyerInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	listingInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	sellerQuoteInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	buyerQuoteInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	buyerBaseInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	vaultAuthorityInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	vaultTokenInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	tokenProgramInfo, err := table.nextAccount()
	if err != nil {
		return err
	}

	if err := assertSigner(buyerInfo); err != nil {
		return err
	}

	listing, err := loadListing(p.programID, listingInfo)
	if err != nil {
		return err
	}
	if listing.Status != StatusActive {
		return ErrInvalidListingStatus
	}
	if err := assertVaultAuthorityAccount(listing, vaultAuthorityInfo); err != nil {
		return err
	}

	remaining := listing.Remaining()
	if quantity > remaining {
		return ErrInsufficientQuantity
	}
	if quantity < remaining && !listing.AllowPartial() {
		return ErrPartialFillDisabled
	}

	quoteAmount, err := QuoteAmount(quantity, listing.PricePerToken, listing.BaseDecimals)
	if err != nil {
		return err
	}

	sellerQuote, err := UnpackTokenAccount(sellerQuoteInfo.Data)
	if err != nil {
		return err
	}
	if err := assertTokenAccountOwner(sellerQuote, listing.Seller); err != nil {
		return err
	}
	if err := assertTokenAccountMint(sellerQuote, listing.QuoteMint); err != nil {
		return err
	}

	buyerQuote, err := UnpackTokenAccount(buyerQuoteInfo.Data)
	if err != nil {
		return err
	}
	if err := assertTokenAccountOwner(buyerQuote, buyerInfo.Key); err != nil {
		return err
	}
	if err := assertTokenAccountMint(buyerQuote, listing.QuoteMint); err != nil {
		return err
	}
	if buyerQuote.Amount < quoteAmount {
		return ErrInsufficientFunds
	}

	buyerBase, err := UnpackTokenAccount(buyerBaseInfo.Data)
	if err != nil {
		return err
	}
	if err := assertTokenAccountOwner(buyerBase, buyerInfo.Key); err != nil {
		return err
	}
	if err := assertTokenAccountMint(buyerBase, listing.BaseMint); err != nil {
		return err
	}

	vaultToken, err := UnpackTokenAccount(vaultTokenInfo.Data)
	if err != nil {
		return err
	}
	if err := assertTokenAccountOwner(vaultToken, vaultAuthorityInfo.Key); err != nil {
		return err
	}
	if err := assertTokenAccountMint(vaultToken, listing.BaseMint); err != nil {
		return err
	}
	if vaultToken.Amount < quantity {
		return ErrInsufficientFunds
	}

	vaultAuthority, err := DeriveVaultAuthority(p.programID, listing)
	if err != nil {
		return err
	}

	// Quote leg rides on the buyer's signature; the base leg leaves the
	// vault and needs the derived authority. Both commit or neither does.
	err = p.executeTransfers(tokenProgramInfo,
		transferLeg{
			source:      buyerQuoteInfo,
			destination: sellerQuoteInfo,
			authority:   buyerInfo,
			amount:      quoteAmount,
		},
		transferLeg{
			source:      vaultTokenInfo,
			destination: buyerBaseInfo,
			authority:   vaultAuthorityInfo,
			amount:      quantity,
			signerSeeds: vaultAuthority.SignerSeeds(),
		},
	)
	if err != nil {
		return err
	}

	if listing.Filled > math.MaxUint64-quantity {
		return ErrAmountOverflow
	}
	listing.Filled += quantity
	if listing.Filled >= listing.Quantity {
		listing.Status = StatusCompleted
	}
	if err := storeListing(listingInfo, listing); err != nil {
		return err
	}

	p.logger.Info("purchase executed",
		"listing", listingInfo.Key,
		"buyer", buyerInfo.Key,
		"quantity", quantity,
		"quote_amount", quoteAmount,
		"filled", listing.Filled,
		"status", listing.Status.String(),
	)
	return nil
}

func (p *Processor) cancelListing(accounts []*AccountRef) error {
	table := newAccountTable(accounts)
	sellerInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	listingInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	vaultAuthorityInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	vaultTokenInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	sellerTokenInfo, err := table.nextAccount()
	if err != nil {
		return err
	}
	tokenProgramInfo, err := table.nextAccount()
	if err != nil {
		return err
	}

	if err := assertSigner(sellerInfo); err != nil {
		return err
	}

	listing, err := loadListing(p.programID, listingInfo)
	if err != nil {
		return err
	}
	if !listing.Seller.Equals(sellerInfo.Key) {
		return ErrIncorrectAuthority
	}

	switch listing.Status {
	case StatusAwaitingDeposit:
		// Nothing was deposited, so nothing moves.
		listing.Status = StatusCancelled
		if err := storeListing(listingInfo, listing); err != nil {
			return err
		}
		p.logger.Info("listing cancelled before deposit", "listing", listingInfo.Key)
		return nil
	case StatusActive:
	case StatusCompleted, StatusCancelled:
		return ErrInvalidListingStatus
	default:
		return ErrInvalidListingStatus
	}

	if err := assertVaultAuthorityAccount(listing, vaultAuthorityInfo); err != nil {
		return err
	}

	remaining := listing.Remaining()
	if remaining > 0 {
		vaultToken, err := UnpackTokenAccount(vaultTokenInfo.Data)
		if err != nil {
			return err
		}
		if err := assertTokenAccountOwner(vaultToken, vaultAuthorityInfo.Key); err != nil {
			return err
		}
		if err := assertTokenAccountMint(vaultToken, listing.BaseMint); err != nil {
			return err
		}

		sellerToken, err := UnpackTokenAccount(sellerTokenInfo.Data)
		if err != nil {
			return err
		}
		if err := assertTokenAccountOwner(sellerToken, sellerInfo.Key); err != nil {
			return err
		}
		if err := assertTokenAccountMint(sellerToken, listing.BaseMint); err != nil {
			return err
		}

		vaultAuthority, err := DeriveVaultAuthority(p.programID, listing)
		if err != nil {
			return err
		}

		err = p.executeTransfers(tokenProgramInfo, transferLeg{
			source:      vaultTokenInfo,
			destination: sellerTokenInfo,
			authority:   vaultAuthorityInfo,
			amount:      remaining,
			signerSeeds: vaultAuthority.SignerSeeds(),
		})
		if err != nil {
			return err
		}
	}

	listing.Status = StatusCancelled
	if err := storeListing(listingInfo, listing); err != nil {
		return err
	}

	p.logger.Info("listing cancelled",
		"listing", listingInfo.Key,
		"returned", remaining,
	)
	return nil
}
