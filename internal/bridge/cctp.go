// Package bridge moves USDC across chains through a burn/mint protocol
// with an off-chain attestation step. The Solana to EVM direction is
// the concrete instance: burn through the token messenger program,
// wait for the attestation service, mint through the EVM message
// transmitter contract.
package bridge

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// Devnet deployment defaults.
const (
	DefaultMessageTransmitterProgram   = "CCTPV2Sm4AdWt5296sk4P66VBZ7bEhcARwFaaS9YPbeC"
	DefaultTokenMessengerMinterProgram = "CCTPV2vPZJS2u2BBsUoscuikbYjnpFmbFsvVuJdgUMQe"
	DefaultEVMMessageTransmitter       = "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275"

	DefaultSolanaDomain   = 5
	DefaultEthereumDomain = 0

	// DefaultMaxFee is the burn's fee ceiling in USDC base units.
	DefaultMaxFee = 500
	// DefaultMinFinalityThreshold selects the fast-transfer attestation
	// tier.
	DefaultMinFinalityThreshold = 1000

	depositForBurnDataLen = 8 + 4 + 32 + 32 + 8 + 4

	// eventDataSpace sizes the message-sent event account the burn
	// writes into.
	eventDataSpace = 1000
)

// depositForBurnDiscriminator is the token messenger program's
// depositForBurn instruction tag.
var depositForBurnDiscriminator = []byte{174, 71, 188, 215, 250, 164, 80, 96}

// ProtocolConfig names the on-chain deployments and protocol constants
// for one bridge corridor.
type ProtocolConfig struct {
	MessageTransmitterProgram   string `split_words:"true"`
	TokenMessengerMinterProgram string `split_words:"true"`
	EVMMessageTransmitter       string `envconfig:"EVM_MESSAGE_TRANSMITTER"`

	SourceDomain      uint32 `split_words:"true" default:"5"`
	DestinationDomain uint32 `split_words:"true" default:"0"`

	MaxFee               uint64 `split_words:"true" default:"500"`
	MinFinalityThreshold uint32 `split_words:"true" default:"1000"`
}

func (c *ProtocolConfig) withDefaults() {
	if c.MessageTransmitterProgram == "" {
		c.MessageTransmitterProgram = DefaultMessageTransmitterProgram
	}
	if c.TokenMessengerMinterProgram == "" {
		c.TokenMessengerMinterProgram = DefaultTokenMessengerMinterProgram
	}
	if c.EVMMessageTransmitter == "" {
		c.EVMMessageTransmitter = DefaultEVMMessageTransmitter
	}
}

// protocol derives the program accounts the burn instruction touches.
type protocol struct {
	messageTransmitterProgram solana.PublicKey
	tokenMessengerProgram     solana.PublicKey
	cfg                       ProtocolConfig
}

func newProtocol(cfg ProtocolConfig) (*protocol, error) {
	cfg.withDefaults()

	mt, err := solana.PublicKeyFromBase58(cfg.MessageTransmitterProgram)
	if err != nil {
		return nil, fmt.Errorf("invalid message transmitter program: %w", err)
	}
	tm, err := solana.PublicKeyFromBase58(cfg.TokenMessengerMinterProgram)
	if err != nil {
		return nil, fmt.Errorf("invalid token messenger program: %w", err)
	}

	return &protocol{
		messageTransmitterProgram: mt,
		tokenMessengerProgram:     tm,
		cfg:                       cfg,
	}, nil
}

func (p *protocol) derive(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive program address: %w", err)
	}
	return addr, nil
}

func (p *protocol) messageTransmitter() (solana.PublicKey, error) {
	return p.derive(p.messageTransmitterProgram, []byte("message_transmitter"))
}

func (p *protocol) tokenMessenger() (solana.PublicKey, error) {
	return p.derive(p.tokenMessengerProgram, []byte("token_messenger"))
}

func (p *protocol) remoteTokenMessenger(domain uint32) (solana.PublicKey, error) {
	seed := make([]byte, 4)
	binary.LittleEndian.PutUint32(seed, domain)
	return p.derive(p.tokenMessengerProgram, []byte("remote_token_messenger"), seed)
}

func (p *protocol) tokenMinter() (solana.PublicKey, error) {
	return p.derive(p.tokenMessengerProgram, []byte("token_minter"))
}

func (p *protocol) localToken(mint solana.PublicKey) (solana.PublicKey, error) {
	return p.derive(p.tokenMessengerProgram, []byte("local_token"), mint[:])
}

func (p *protocol) tokenPair(remoteDomain uint32, remoteToken []byte) (solana.PublicKey, error) {
	seed := make([]byte, 4)
	binary.LittleEndian.PutUint32(seed, remoteDomain)
	return p.derive(p.tokenMessengerProgram, []byte("token_pair"), seed, remoteToken)
}

func (p *protocol) custodyToken(mint solana.PublicKey) (solana.PublicKey, error) {
	return p.derive(p.tokenMessengerProgram, []byte("custody"), mint[:])
}

func (p *protocol) messengerEventAuthority() (solana.PublicKey, error) {
	return p.derive(p.tokenMessengerProgram, []byte("__event_authority"))
}

func (p *protocol) transmitterEventAuthority() (solana.PublicKey, error) {
	return p.derive(p.messageTransmitterProgram, []byte("__event_authority"))
}

func (p *protocol) messageSentEventData(nonce uint64) (solana.PublicKey, error) {
	seed := make([]byte, 8)
	binary.LittleEndian.PutUint64(seed, nonce)
	return p.derive(p.messageTransmitterProgram, []byte("message_sent_event_data_"), seed)
}

// EstimateFee returns the fee ceiling a fast transfer may charge for a
// burn of amount base units: one tenth of a percent, capped at maxFee.
func EstimateFee(amount, maxFee uint64) uint64 {
	fee := amount / 1000
	if fee > maxFee {
		return maxFee
	}
	return fee
}

// EVMAddressTo32 left-pads an EVM address to the protocol's 32-byte
// recipient encoding.
func EVMAddressTo32(address string) ([]byte, error) {
	clean := strings.TrimPrefix(address, "0x")
	if !ecommon.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid EVM address: %s", address)
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid EVM address: %w", err)
	}
	out := make([]byte, 32)
	copy(out[12:], raw)
	return out, nil
}

// burnParams is everything the depositForBurn instruction encodes.
type burnParams struct {
	amount               uint64
	destinationDomain    uint32
	mintRecipient        []byte // 32 bytes
	destinationCaller    []byte // 32 bytes, zero means any caller
	maxFee               uint64
	minFinalityThreshold uint32
}

func serializeDepositForBurn(p burnParams) []byte {
	data := make([]byte, 0, 8+depositForBurnDataLen)
	data = append(data, depositForBurnDiscriminator...)

	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], p.amount)
	data = append(data, scratch[:]...)
	binary.LittleEndian.PutUint32(scratch[:4], p.destinationDomain)
	data = append(data, scratch[:4]...)
	data = append(data, p.mintRecipient...)
	data = append(data, p.destinationCaller...)
	binary.LittleEndian.PutUint64(scratch[:], p.maxFee)
	data = append(data, scratch[:]...)
	binary.LittleEndian.PutUint32(scratch[:4], p.minFinalityThreshold)
	data = append(data, scratch[:4]...)

	return data
}

// buildDepositForBurn assembles the burn instruction with the full
// account set the token messenger program expects. burnTokenAccount is
// the owner's USDC associated token account.
func (p *protocol) buildDepositForBurn(
	params burnParams,
	mint solana.PublicKey,
	burnTokenOwner solana.PublicKey,
	burnTokenAccount solana.PublicKey,
	nonce uint64,
) (solana.Instruction, solana.PublicKey, error) {
	tokenMessenger, err := p.tokenMessenger()
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	messageTransmitter, err := p.messageTransmitter()
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	remoteMessenger, err := p.remoteTokenMessenger(params.destinationDomain)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	tokenMinter, err := p.tokenMinter()
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	localToken, err := p.localToken(mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	tokenPair, err := p.tokenPair(params.destinationDomain, params.mintRecipient)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	custody, err := p.custodyToken(mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	messengerAuthority, err := p.messengerEventAuthority()
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	transmitterAuthority, err := p.transmitterEventAuthority()
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	eventData, err := p.messageSentEventData(nonce)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	inst := solana.NewInstruction(
		p.tokenMessengerProgram,
		[]*solana.AccountMeta{
			{PublicKey: burnTokenOwner, IsSigner: true, IsWritable: false},
			{PublicKey: burnTokenAccount, IsSigner: false, IsWritable: true},
			{PublicKey: mint, IsSigner: false, IsWritable: true},
			{PublicKey: localToken, IsSigner: false, IsWritable: true},
			{PublicKey: tokenPair, IsSigner: false, IsWritable: false},
			{PublicKey: tokenMessenger, IsSigner: false, IsWritable: false},
			{PublicKey: remoteMessenger, IsSigner: false, IsWritable: false},
			{PublicKey: tokenMinter, IsSigner: false, IsWritable: true},
			{PublicKey: custody, IsSigner: false, IsWritable: true},
			{PublicKey: messengerAuthority, IsSigner: false, IsWritable: false},
			{PublicKey: messageTransmitter, IsSigner: false, IsWritable: false},
			{PublicKey: eventData, IsSigner: false, IsWritable: true},
			{PublicKey: burnTokenOwner, IsSigner: true, IsWritable: true},
			{PublicKey: transmitterAuthority, IsSigner: false, IsWritable: false},
			{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: solana.SysVarRentPubkey, IsSigner: false, IsWritable: false},
			{PublicKey: p.messageTransmitterProgram, IsSigner: false, IsWritable: false},
		},
		serializeDepositForBurn(params),
	)

	return inst, eventData, nil
}
