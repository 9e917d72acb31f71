package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// Config points at one Solana cluster.
type Config struct {
	RPCURL   string `split_words:"true" required:"true"`
	USDCMint string `split_words:"true" required:"true"`
	// ConfirmInterval/ConfirmAttempts bound how long a signature is
	// polled before the submission is reported without confirmation.
	ConfirmInterval time.Duration `split_words:"true" default:"2s"`
	ConfirmAttempts int           `split_words:"true" default:"30"`
}

// Network is the Solana-side facade: balances, token transfers,
// instruction submission. Signing keys are session-scoped and passed
// per call.
type Network struct {
	rpc      *rpc.Client
	usdcMint solana.PublicKey

	Balance *balanceService
	Token   *tokenAccountService
	Send    *sendService

	confirmInterval time.Duration
	confirmAttempts int

	logger *logrus.Entry
}

func NewNetwork(ctx context.Context, cfg Config, logger *logrus.Logger) (*Network, error) {
	rpcClient := rpc.New(cfg.RPCURL)

	_, err := rpcClient.GetVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Solana RPC: %w", err)
	}

	mint, err := solana.PublicKeyFromBase58(cfg.USDCMint)
	if err != nil {
		return nil, fmt.Errorf("invalid USDC mint: %w", err)
	}

	tokenAccount := newTokenAccountService(rpcClient)

	return &Network{
		rpc:             rpcClient,
		usdcMint:        mint,
		Balance:         newBalanceService(rpcClient, tokenAccount),
		Token:           tokenAccount,
		Send:            newSendService(rpcClient),
		confirmInterval: cfg.ConfirmInterval,
		confirmAttempts: cfg.ConfirmAttempts,
		logger:          logger.WithField("pkg", "solana"),
	}, nil
}

func (n *Network) RPC() *rpc.Client {
	return n.rpc
}

func (n *Network) USDCMint() solana.PublicKey {
	return n.usdcMint
}

// SendUSDC moves amount base units of USDC to `to`, creating the
// destination associated token account first when it does not exist.
// Returns the signature as accepted by the RPC.
func (n *Network) SendUSDC(ctx context.Context, key solana.PrivateKey, to solana.PublicKey, amount uint64) (string, error) {
	from := key.PublicKey()

	tokenProgram, err := n.Token.GetTokenProgram(ctx, n.usdcMint)
	if err != nil {
		return "", fmt.Errorf("failed to get token program: %w", err)
	}

	destATA, err := n.Token.GetAssociatedTokenAddress(to, n.usdcMint, tokenProgram)
	if err != nil {
		return "", fmt.Errorf("failed to get destination ATA: %w", err)
	}

	var instructions []solana.Instruction

	exists, err := n.Token.CheckAccountExists(ctx, destATA)
	if err != nil {
		return "", fmt.Errorf("failed to check if destination ATA exists: %w", err)
	}
	if !exists {
		createInst, err := n.Token.BuildCreateATAInstruction(from, to, n.usdcMint, tokenProgram)
		if err != nil {
			return "", fmt.Errorf("failed to build create destination ATA instruction: %w", err)
		}
		instructions = append(instructions, createInst)
	}

	transferInst, err := n.Send.BuildSPLTransfer(n.usdcMint, from, to, amount, tokenProgram)
	if err != nil {
		return "", fmt.Errorf("failed to build SPL transfer: %w", err)
	}
	instructions = append(instructions, transferInst)

	return n.Submit(ctx, key, nil, instructions)
}

// Submit assembles, signs, and broadcasts a transaction paid by the
// payer key, then waits for confirmation within the configured bounds.
// Extra signers cover instructions that reference freshly generated
// keypairs.
func (n *Network) Submit(
	ctx context.Context,
	payer solana.PrivateKey,
	extraSigners []solana.PrivateKey,
	instructions []solana.Instruction,
) (string, error) {
	block, err := n.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		block.Value.Blockhash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transaction: %w", err)
	}

	signers := map[solana.PublicKey]solana.PrivateKey{
		payer.PublicKey(): payer,
	}
	for _, s := range extraSigners {
		signers[s.PublicKey()] = s
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if k, ok := signers[key]; ok {
			return &k
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := n.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	if err := n.WaitConfirmed(ctx, sig); err != nil {
		return "", err
	}

	return sig.String(), nil
}

// WaitConfirmed polls the signature status until it reaches at least
// confirmed commitment or the attempt ceiling is hit. Exhausting the
// poll is not an error: the transaction was accepted and may still
// land.
func (n *Network) WaitConfirmed(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(n.confirmInterval)
	defer ticker.Stop()

	for i := 0; i < n.confirmAttempts; i++ {
		out, err := n.rpc.GetSignatureStatuses(ctx, false, sig)
		if err == nil && out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed on chain: %v", sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	n.logger.Warnf("confirmation poll exhausted for %s, status unknown", sig)
	return nil
}

// KeyedSender binds a session key to the network so protocol clients
// can submit instruction bundles without holding the key themselves.
type KeyedSender struct {
	n   *Network
	key solana.PrivateKey
}

func (n *Network) WithKey(key solana.PrivateKey) *KeyedSender {
	return &KeyedSender{n: n, key: key}
}

func (s *KeyedSender) SendInstructions(ctx context.Context, instructions []solana.Instruction) (string, error) {
	return s.n.Submit(ctx, s.key, nil, instructions)
}
