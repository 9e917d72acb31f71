package solana

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestSPLTransferInstructionLayout(t *testing.T) {
	s := newSendService(nil)

	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	mint := solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

	inst, err := s.BuildSPLTransfer(mint, from, to, 70_000_000, solana.TokenProgramID)
	require.NoError(t, err)

	data, err := inst.Data()
	require.NoError(t, err)
	require.Len(t, data, 9)
	require.Equal(t, byte(3), data[0])
	require.Equal(t, uint64(70_000_000), binary.LittleEndian.Uint64(data[1:]))

	accounts := inst.Accounts()
	require.Len(t, accounts, 3)
	require.True(t, accounts[0].IsWritable)
	require.True(t, accounts[1].IsWritable)
	require.True(t, accounts[2].IsSigner)
	require.Equal(t, from, accounts[2].PublicKey)
}

func TestFindAssociatedTokenAddressDeterministic(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	mint := solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

	a1, _, err := FindAssociatedTokenAddress(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	a2, _, err := FindAssociatedTokenAddress(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	require.Equal(t, a1, a2)
	require.NotEqual(t, owner, a1)

	// Different token programs derive different accounts.
	a3, _, err := FindAssociatedTokenAddress(owner, mint, solana.Token2022ProgramID)
	require.NoError(t, err)
	require.NotEqual(t, a1, a3)
}

func TestCreateATAInstructionAccounts(t *testing.T) {
	s := newTokenAccountService(nil)

	payer := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	mint := solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

	inst, err := s.BuildCreateATAInstruction(payer, owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	require.Equal(t, solana.SPLAssociatedTokenAccountProgramID, inst.ProgramID())

	data, err := inst.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0}, data)

	accounts := inst.Accounts()
	require.Len(t, accounts, 6)
	require.Equal(t, payer, accounts[0].PublicKey)
	require.True(t, accounts[0].IsSigner)

	ata, _, err := FindAssociatedTokenAddress(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	require.Equal(t, ata, accounts[1].PublicKey)
}
