package solana

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

type sendService struct {
	rpcClient *rpc.Client
}

func newSendService(rpcClient *rpc.Client) *sendService {
	return &sendService{
		rpcClient: rpcClient,
	}
}

// BuildNativeTransfer returns a lamport transfer instruction, refusing
// amounts that would leave a brand-new destination below rent
// exemption.
func (s *sendService) BuildNativeTransfer(
	ctx context.Context,
	from solana.PublicKey,
	to solana.PublicKey,
	amount uint64,
) (solana.Instruction, error) {
	accountInfo, err := s.rpcClient.GetAccountInfo(ctx, to)
	if err != nil && err.Error() != "not found" {
		return nil, fmt.Errorf("failed to check destination account: %w", err)
	}

	accountExists := accountInfo != nil && accountInfo.Value != nil

	if !accountExists {
		rentExempt, err := s.rpcClient.GetMinimumBalanceForRentExemption(ctx, 0, rpc.CommitmentFinalized)
		if err != nil {
			return nil, fmt.Errorf("failed to get rent exemption: %w", err)
		}

		if amount < rentExempt {
			return nil, fmt.Errorf(
				"transfer amount %d lamports is below rent-exempt minimum %d lamports for new account",
				amount,
				rentExempt,
			)
		}
	}

	return system.NewTransferInstruction(amount, from, to).Build(), nil
}

// BuildSPLTransfer returns a token transfer instruction between the
// owners' associated token accounts.
func (s *sendService) BuildSPLTransfer(
	mint solana.PublicKey,
	fromOwner solana.PublicKey,
	toOwner solana.PublicKey,
	amount uint64,
	tokenProgram solana.PublicKey,
) (solana.Instruction, error) {
	sourceATA, _, err := FindAssociatedTokenAddress(fromOwner, mint, tokenProgram)
	if err != nil {
		return nil, fmt.Errorf("failed to find source ATA: %w", err)
	}

	destATA, _, err := FindAssociatedTokenAddress(toOwner, mint, tokenProgram)
	if err != nil {
		return nil, fmt.Errorf("failed to find destination ATA: %w", err)
	}

	// Transfer instruction data: discriminator (1 byte) + amount (8
	// bytes little-endian).
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		tokenProgram,
		[]*solana.AccountMeta{
			{PublicKey: sourceATA, IsSigner: false, IsWritable: true},
			{PublicKey: destATA, IsSigner: false, IsWritable: true},
			{PublicKey: fromOwner, IsSigner: true, IsWritable: false},
		},
		data,
	), nil
}
