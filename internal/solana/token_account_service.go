package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type tokenAccountService struct {
	rpcClient *rpc.Client
}

func newTokenAccountService(rpcClient *rpc.Client) *tokenAccountService {
	return &tokenAccountService{
		rpcClient: rpcClient,
	}
}

// GetTokenProgram queries the mint account to determine which token
// program owns it. Returns TokenProgramID for legacy SPL tokens or
// Token2022ProgramID for Token-2022 tokens.
func (s *tokenAccountService) GetTokenProgram(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	accountInfo, err := s.rpcClient.GetAccountInfo(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to get mint account info: %w", err)
	}

	if accountInfo.Value == nil {
		return solana.PublicKey{}, fmt.Errorf("mint account not found: %s", mint)
	}

	owner := accountInfo.Value.Owner
	if owner != solana.TokenProgramID && owner != solana.Token2022ProgramID {
		return solana.PublicKey{}, fmt.Errorf("mint account is not owned by a token program: %s", owner)
	}

	return owner, nil
}

// FindAssociatedTokenAddress derives the ATA address for any token
// program (SPL or Token-2022).
func FindAssociatedTokenAddress(wallet, mint, tokenProgram solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{
			wallet[:],
			tokenProgram[:],
			mint[:],
		},
		solana.SPLAssociatedTokenAccountProgramID,
	)
}

func (s *tokenAccountService) GetAssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	a, _, err := FindAssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to get associated token address: %w", err)
	}
	return a, nil
}

func (s *tokenAccountService) CheckAccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	accountInfo, err := s.rpcClient.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get account info: %w", err)
	}
	return accountInfo.Value != nil, nil
}

// BuildCreateATAInstruction creates an instruction to create an ATA for
// any token program.
func (s *tokenAccountService) BuildCreateATAInstruction(
	payer, owner, mint, tokenProgram solana.PublicKey,
) (solana.Instruction, error) {
	ataAddress, _, err := FindAssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return nil, fmt.Errorf("failed to derive ATA address: %w", err)
	}

	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		[]*solana.AccountMeta{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: ataAddress, IsSigner: false, IsWritable: true},
			{PublicKey: owner, IsSigner: false, IsWritable: false},
			{PublicKey: mint, IsSigner: false, IsWritable: false},
			{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: tokenProgram, IsSigner: false, IsWritable: false},
		},
		[]byte{0}, // instruction discriminator for "Create"
	), nil
}

// GetTokenBalance returns the base-unit balance held in a token
// account. A missing account is an empty balance, not an error.
func (s *tokenAccountService) GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	balance, err := s.rpcClient.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentFinalized)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, nil
		}

		if strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}

	if balance.Value == nil || balance.Value.Amount == "" {
		return 0, nil
	}

	var amount uint64
	_, er := fmt.Sscanf(balance.Value.Amount, "%d", &amount)
	if er != nil {
		return 0, fmt.Errorf("failed to parse amount: %w", er)
	}

	return amount, nil
}
