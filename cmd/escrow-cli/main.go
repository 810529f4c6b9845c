package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gagliardetto/solana-go"
	_ "github.com/joho/godotenv/autoload"

	"github.com/coldbell/escrow/backend/internal/client"
	"github.com/coldbell/escrow/backend/internal/config"
	"github.com/coldbell/escrow/backend/internal/escrow"
	"github.com/coldbell/escrow/backend/internal/logging"
)

const usage = `usage: escrow-cli <command> [flags]

commands:
  init-listing   create a listing account record on chain
  deposit        move listed tokens from the seller into the vault
  purchase       buy from an active listing
  cancel         cancel a listing and refund the vault
  show           fetch and print one listing account
`

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.LoadCLIConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("escrow-cli", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, args, cfg, logger); err != nil {
		logger.Error("command failed", "command", command, "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, cfg config.CLIConfig, logger *slog.Logger) error {
	switch command {
	case "init-listing":
		return runInitListing(ctx, args, cfg, logger)
	case "deposit":
		return runDeposit(ctx, args, cfg, logger)
	case "purchase":
		return runPurchase(ctx, args, cfg, logger)
	case "cancel":
		return runCancel(ctx, args, cfg, logger)
	case "show":
		return runShow(ctx, args, cfg, logger)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", command)
}

func runInitListing(ctx context.Context, args []string, cfg config.CLIConfig, logger *slog.Logger) error {
	fs := flag.NewFlagSet("init-listing", flag.ExitOnError)
	listingFlag := fs.String("listing", "", "listing account pubkey (required)")
	listingIDFlag := fs.Uint64("listing-id", 0, "seller-chosen listing id (required)")
	baseMintFlag := fs.String("base-mint", "", "mint of the token being sold (required)")
	quoteMintFlag := fs.String("quote-mint", "", "mint the buyer pays with (required)")
	priceFlag := fs.String("price", "", "quote base units per whole base token (required)")
	quantityFlag := fs.String("quantity", "", "base units offered (required)")
	allowPartialFlag := fs.Bool("allow-partial", false, "allow partial fills")
	feeMethodFlag := fs.String("fee-method", "native-sol", "fee payment method: native-sol or x402")
	x402PayloadFlag := fs.String("x402-payload", "", "payment proof payload, required with -fee-method=x402")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listing, err := requirePubkey("listing", *listingFlag)
	if err != nil {
		return err
	}
	baseMint, err := requirePubkey("base-mint", *baseMintFlag)
	if err != nil {
		return err
	}
	quoteMint, err := requirePubkey("quote-mint", *quoteMintFlag)
	if err != nil {
		return err
	}
	price, err := requireUint64("price", *priceFlag)
	if err != nil {
		return err
	}
	quantity, err := requireUint64("quantity", *quantityFlag)
	if err != nil {
		return err
	}

	var feeMethod escrow.FeePaymentMethod
	switch *feeMethodFlag {
	case "native-sol":
		feeMethod = escrow.FeeNativeSol
	case "x402":
		feeMethod = escrow.FeeX402
		if *x402PayloadFlag == "" {
			return fmt.Errorf("-x402-payload is required with -fee-method=x402")
		}
	default:
		return fmt.Errorf("invalid -fee-method %q", *feeMethodFlag)
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}

	vault, err := client.DeriveVaultAddresses(c.ProgramID(), c.Signer(), baseMint, *listingIDFlag)
	if err != nil {
		return fmt.Errorf("derive vault addresses: %w", err)
	}

	initArgs := escrow.InitializeListingArgs{
		ListingID:        *listingIDFlag,
		PricePerToken:    price,
		Quantity:         quantity,
		AllowPartial:     *allowPartialFlag,
		FeePaymentMethod: uint8(feeMethod),
	}
	if *x402PayloadFlag != "" {
		payload := *x402PayloadFlag
		initArgs.X402Payload = &payload
	}

	ix, err := client.NewInitializeListingInstruction(
		c.ProgramID(), c.Signer(), listing,
		vault.Authority, vault.VaultTokenAccount,
		baseMint, quoteMint,
		initArgs,
	)
	if err != nil {
		return fmt.Errorf("build instruction: %w", err)
	}

	sig, err := c.Submit(ctx, ix)
	if err != nil {
		return err
	}
	logger.Info("listing initialized",
		"listing", listing,
		"listing_id", *listingIDFlag,
		"vault_authority", vault.Authority,
		"vault_token_account", vault.VaultTokenAccount,
		"signature", sig,
	)
	return nil
}

func runDeposit(ctx context.Context, args []string, cfg config.CLIConfig, logger *slog.Logger) error {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	listingFlag := fs.String("listing", "", "listing account pubkey (required)")
	sellerTokenFlag := fs.String("seller-token", "", "seller base token account, defaults to the signer's ATA")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listingKey, err := requirePubkey("listing", *listingFlag)
	if err != nil {
		return err
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}

	listing, err := c.FetchListing(ctx, listingKey)
	if err != nil {
		return err
	}

	sellerToken, err := resolveTokenAccount(*sellerTokenFlag, c.Signer(), listing.BaseMint)
	if err != nil {
		return err
	}
	vault, err := client.DeriveVaultAddresses(c.ProgramID(), listing.Seller, listing.BaseMint, listing.ListingID)
	if err != nil {
		return fmt.Errorf("derive vault addresses: %w", err)
	}

	ix := client.NewDepositTokensInstruction(
		c.ProgramID(), c.Signer(), listingKey,
		sellerToken, vault.Authority, vault.VaultTokenAccount,
	)

	sig, err := c.Submit(ctx, ix)
	if err != nil {
		return err
	}
	logger.Info("deposit complete",
		"listing", listingKey,
		"quantity", listing.Quantity,
		"signature", sig,
	)
	return nil
}

func runPurchase(ctx context.Context, args []string, cfg config.CLIConfig, logger *slog.Logger) error {
	fs := flag.NewFlagSet("purchase", flag.ExitOnError)
	listingFlag := fs.String("listing", "", "listing account pubkey (required)")
	quantityFlag := fs.String("quantity", "", "base units to buy (required)")
	buyerBaseFlag := fs.String("buyer-base", "", "buyer base token account, defaults to the signer's ATA")
	buyerQuoteFlag := fs.String("buyer-quote", "", "buyer quote token account, defaults to the signer's ATA")
	sellerQuoteFlag := fs.String("seller-quote", "", "seller quote token account, defaults to the seller's ATA")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listingKey, err := requirePubkey("listing", *listingFlag)
	if err != nil {
		return err
	}
	quantity, err := requireUint64("quantity", *quantityFlag)
	if err != nil {
		return err
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}

	listing, err := c.FetchListing(ctx, listingKey)
	if err != nil {
		return err
	}

	sellerQuote, err := resolveTokenAccount(*sellerQuoteFlag, listing.Seller, listing.QuoteMint)
	if err != nil {
		return err
	}
	buyerQuote, err := resolveTokenAccount(*buyerQuoteFlag, c.Signer(), listing.QuoteMint)
	if err != nil {
		return err
	}
	buyerBase, err := resolveTokenAccount(*buyerBaseFlag, c.Signer(), listing.BaseMint)
	if err != nil {
		return err
	}
	vault, err := client.DeriveVaultAddresses(c.ProgramID(), listing.Seller, listing.BaseMint, listing.ListingID)
	if err != nil {
		return fmt.Errorf("derive vault addresses: %w", err)
	}

	quoteAmount, err := escrow.QuoteAmount(quantity, listing.PricePerToken, listing.BaseDecimals)
	if err != nil {
		return fmt.Errorf("compute quote amount: %w", err)
	}

	ix, err := client.NewPurchaseInstruction(
		c.ProgramID(), c.Signer(), listingKey,
		sellerQuote, buyerQuote, buyerBase,
		vault.Authority, vault.VaultTokenAccount,
		quantity,
	)
	if err != nil {
		return fmt.Errorf("build instruction: %w", err)
	}

	sig, err := c.Submit(ctx, ix)
	if err != nil {
		return err
	}
	logger.Info("purchase complete",
		"listing", listingKey,
		"quantity", quantity,
		"quote_paid", quoteAmount,
		"signature", sig,
	)
	return nil
}

func runCancel(ctx context.Context, args []string, cfg config.CLIConfig, logger *slog.Logger) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	listingFlag := fs.String("listing", "", "listing account pubkey (required)")
	sellerTokenFlag := fs.String("seller-token", "", "seller base token account, defaults to the signer's ATA")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listingKey, err := requirePubkey("listing", *listingFlag)
	if err != nil {
		return err
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}

	listing, err := c.FetchListing(ctx, listingKey)
	if err != nil {
		return err
	}

	sellerToken, err := resolveTokenAccount(*sellerTokenFlag, c.Signer(), listing.BaseMint)
	if err != nil {
		return err
	}
	vault, err := client.DeriveVaultAddresses(c.ProgramID(), listing.Seller, listing.BaseMint, listing.ListingID)
	if err != nil {
		return fmt.Errorf("derive vault addresses: %w", err)
	}

	ix := client.NewCancelListingInstruction(
		c.ProgramID(), c.Signer(), listingKey,
		vault.Authority, vault.VaultTokenAccount, sellerToken,
	)

	sig, err := c.Submit(ctx, ix)
	if err != nil {
		return err
	}
	logger.Info("listing cancelled",
		"listing", listingKey,
		"refunded", listing.Remaining(),
		"signature", sig,
	)
	return nil
}

func runShow(ctx context.Context, args []string, cfg config.CLIConfig, logger *slog.Logger) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	listingFlag := fs.String("listing", "", "listing account pubkey (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listingKey, err := requirePubkey("listing", *listingFlag)
	if err != nil {
		return err
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}

	listing, err := c.FetchListing(ctx, listingKey)
	if err != nil {
		return err
	}

	out := map[string]any{
		"pubkey":             listingKey.String(),
		"listing_id":         strconv.FormatUint(listing.ListingID, 10),
		"seller":             listing.Seller.String(),
		"base_mint":          listing.BaseMint.String(),
		"quote_mint":         listing.QuoteMint.String(),
		"vault_authority":    listing.VaultAuthority.String(),
		"price_per_token":    strconv.FormatUint(listing.PricePerToken, 10),
		"quantity":           strconv.FormatUint(listing.Quantity, 10),
		"filled":             strconv.FormatUint(listing.Filled, 10),
		"remaining":          strconv.FormatUint(listing.Remaining(), 10),
		"allow_partial":      listing.AllowPartial(),
		"vault_bump":         listing.VaultBump,
		"status":             listing.Status.String(),
		"base_decimals":      listing.BaseDecimals,
		"fee_payment_method": listing.FeePaymentMethod.String(),
		"fee_amount_paid":    strconv.FormatUint(listing.FeeAmountPaid, 10),
		"x402_payload_hash":  fmt.Sprintf("%x", listing.X402PayloadHash),
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func requirePubkey(name, raw string) (solana.PublicKey, error) {
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("-%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid -%s: %w", name, err)
	}
	return key, nil
}

func requireUint64(name, raw string) (uint64, error) {
	if raw == "" {
		return 0, fmt.Errorf("-%s is required", name)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid -%s: %w", name, err)
	}
	return value, nil
}

// resolveTokenAccount uses the explicit flag value when given, otherwise the
// owner's associated token account for the mint.
func resolveTokenAccount(raw string, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	if raw != "" {
		key, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("invalid token account %q: %w", raw, err)
		}
		return key, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	return ata, nil
}
