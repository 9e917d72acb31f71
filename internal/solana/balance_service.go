package solana

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type balanceService struct {
	rpcClient    *rpc.Client
	tokenAccount *tokenAccountService
}

func newBalanceService(rpcClient *rpc.Client, tokenAccount *tokenAccountService) *balanceService {
	return &balanceService{
		rpcClient:    rpcClient,
		tokenAccount: tokenAccount,
	}
}

// GetNativeBalance returns the owner's lamport balance.
func (s *balanceService) GetNativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	out, err := s.rpcClient.GetBalance(ctx, owner, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("failed to get native balance: %w", err)
	}
	return out.Value, nil
}

// GetTokenBalance returns the owner's base-unit balance of mint, zero
// when the associated token account does not exist yet.
func (s *balanceService) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	tokenProgram, err := s.tokenAccount.GetTokenProgram(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to get token program: %w", err)
	}

	ata, err := s.tokenAccount.GetAssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return 0, err
	}

	return s.tokenAccount.GetTokenBalance(ctx, ata)
}
