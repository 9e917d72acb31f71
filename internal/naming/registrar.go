package naming

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	ecommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// RegisterResult carries the transaction reference of a registration
// write, per chain.
type RegisterResult struct {
	TxRef string `json:"txRef"`
}

// Registrar performs the on-chain registration write for one registry.
// Implementations encapsulate the registry's own protocol (commit/reveal
// windows, account funding) so none of it leaks to the router.
type Registrar interface {
	Register(ctx context.Context, name string, owner string) (RegisterResult, error)
}

// RegistrarMode selects the registration path. The simulated path
// exists because the registries are third-party deployments that may be
// absent in a given environment; the two paths are never mixed.
type RegistrarMode string

const (
	RegistrarModeChain RegistrarMode = "chain"
	RegistrarModeMock  RegistrarMode = "mock"
)

// Registrars drives registration across both registries behind the
// dual-availability gate.
type Registrars struct {
	resolver *Resolver
	evm      Registrar
	sol      Registrar
	logger   *logrus.Entry
}

func NewRegistrars(resolver *Resolver, evm, sol Registrar, logger *logrus.Logger) *Registrars {
	return &Registrars{
		resolver: resolver,
		evm:      evm,
		sol:      sol,
		logger:   logger.WithField("pkg", "naming"),
	}
}

// RegisterBoth registers name on both registries. The availability gate
// runs first and blocks before any write is attempted: a name taken on
// either registry is a terminal rejection for that name.
func (r *Registrars) RegisterBoth(
	ctx context.Context,
	username string,
	evmOwner string,
	solOwner string,
) (evmRes, solRes RegisterResult, err error) {
	name := Normalize(username)
	if err := Validate(name); err != nil {
		return RegisterResult{}, RegisterResult{}, err
	}

	avail, err := r.resolver.CheckBoth(ctx, name)
	if err != nil {
		return RegisterResult{}, RegisterResult{}, err
	}
	if !avail.Both() {
		return RegisterResult{}, RegisterResult{}, fmt.Errorf("%w: %q (evm=%t solana=%t)",
			ErrNameUnavailable, name, avail.EVM, avail.Solana)
	}

	evmRes, err = r.evm.Register(ctx, name, evmOwner)
	if err != nil {
		return RegisterResult{}, RegisterResult{}, fmt.Errorf("failed to register %s.eth: %w", name, err)
	}

	solRes, err = r.sol.Register(ctx, name, solOwner)
	if err != nil {
		// Money already moved on the EVM side; report the partial state.
		return evmRes, RegisterResult{}, fmt.Errorf("registered %s.eth but failed on %s.sol: %w", name, name, err)
	}

	r.logger.WithField("name", name).Info("username registered on both registries")
	return evmRes, solRes, nil
}

// --- simulated path ---

// mockRegistrar synthesizes a success after a fixed delay, used when no
// live registry deployment is configured.
type mockRegistrar struct {
	delay  time.Duration
	hexRef bool
	logger *logrus.Entry
}

func NewMockRegistrar(delay time.Duration, hexRef bool, logger *logrus.Logger) Registrar {
	return &mockRegistrar{
		delay:  delay,
		hexRef: hexRef,
		logger: logger.WithField("pkg", "naming"),
	}
}

func (m *mockRegistrar) Register(ctx context.Context, name string, owner string) (RegisterResult, error) {
	select {
	case <-ctx.Done():
		return RegisterResult{}, ctx.Err()
	case <-time.After(m.delay):
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return RegisterResult{}, fmt.Errorf("failed to synthesize tx ref: %w", err)
	}

	ref := "0x" + hex.EncodeToString(buf)
	if !m.hexRef {
		ref = base58.Encode(buf)
	}

	m.logger.WithFields(logrus.Fields{"name": name, "owner": owner}).
		Debug("simulated registration complete")
	return RegisterResult{TxRef: ref}, nil
}

// --- EVM chain path ---

// EVMTxSender submits a signed call to the chain and waits for it to
// mine; implemented by the evm network.
type EVMTxSender interface {
	SubmitCall(ctx context.Context, to ecommon.Address, value *big.Int, data []byte) (string, error)
	WaitMined(ctx context.Context, txHash string) error
}

// ENSRegistrarConfig configures the controller deployment and protocol
// parameters for the commit/reveal flow.
type ENSRegistrarConfig struct {
	ControllerAddress string        `split_words:"true"`
	ResolverAddress   string        `split_words:"true"`
	CommitmentAge     time.Duration `split_words:"true" default:"60s"`
	Duration          time.Duration `default:"8760h"` // one year
	PriceWei          string        `split_words:"true" default:"1000000000000000"`
}

type ensRegistrar struct {
	sender EVMTxSender
	cfg    ENSRegistrarConfig
	logger *logrus.Entry
}

func NewENSRegistrar(sender EVMTxSender, cfg ENSRegistrarConfig, logger *logrus.Logger) Registrar {
	return &ensRegistrar{
		sender: sender,
		cfg:    cfg,
		logger: logger.WithField("pkg", "naming"),
	}
}

// Register runs the controller's two-step flow: commit a blinded
// commitment, wait out the commitment age, then reveal-register.
func (e *ensRegistrar) Register(ctx context.Context, name string, owner string) (RegisterResult, error) {
	controller := ecommon.HexToAddress(e.cfg.ControllerAddress)
	ownerAddr := ecommon.HexToAddress(owner)

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return RegisterResult{}, fmt.Errorf("failed to generate commitment secret: %w", err)
	}

	commitment := crypto.Keccak256Hash(
		crypto.Keccak256([]byte(name)),
		ownerAddr.Bytes(),
		secret[:],
	)

	commitData := append(commitSelector(), commitment.Bytes()...)
	commitTx, err := e.sender.SubmitCall(ctx, controller, big.NewInt(0), commitData)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("failed to submit commitment: %w", err)
	}
	if err := e.sender.WaitMined(ctx, commitTx); err != nil {
		return RegisterResult{}, fmt.Errorf("commitment not mined: %w", err)
	}

	select {
	case <-ctx.Done():
		return RegisterResult{}, ctx.Err()
	case <-time.After(e.cfg.CommitmentAge):
	}

	price, ok := new(big.Int).SetString(e.cfg.PriceWei, 10)
	if !ok {
		return RegisterResult{}, fmt.Errorf("invalid registration price: %s", e.cfg.PriceWei)
	}

	registerData, err := packRegister(name, ownerAddr, uint64(e.cfg.Duration.Seconds()), secret)
	if err != nil {
		return RegisterResult{}, err
	}
	registerTx, err := e.sender.SubmitCall(ctx, controller, price, registerData)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("failed to submit registration: %w", err)
	}
	if err := e.sender.WaitMined(ctx, registerTx); err != nil {
		return RegisterResult{}, fmt.Errorf("registration not mined: %w", err)
	}

	e.logger.WithFields(logrus.Fields{"name": name, "tx": registerTx}).Info("ens name registered")
	return RegisterResult{TxRef: registerTx}, nil
}

func commitSelector() []byte {
	return crypto.Keccak256([]byte("commit(bytes32)"))[:4]
}

// packRegister ABI-encodes register(string,address,uint256,bytes32).
func packRegister(name string, owner ecommon.Address, durationSec uint64, secret [32]byte) ([]byte, error) {
	selector := crypto.Keccak256([]byte("register(string,address,uint256,bytes32)"))[:4]

	// Head: offset to string, owner, duration, secret. Tail: string.
	head := make([]byte, 0, 4*32)
	head = append(head, ecommon.LeftPadBytes(big.NewInt(4*32).Bytes(), 32)...)
	head = append(head, ecommon.LeftPadBytes(owner.Bytes(), 32)...)
	head = append(head, ecommon.LeftPadBytes(new(big.Int).SetUint64(durationSec).Bytes(), 32)...)
	head = append(head, secret[:]...)

	nameBytes := []byte(name)
	tail := make([]byte, 0, 32+((len(nameBytes)+31)/32)*32)
	tail = append(tail, ecommon.LeftPadBytes(big.NewInt(int64(len(nameBytes))).Bytes(), 32)...)
	padded := make([]byte, ((len(nameBytes)+31)/32)*32)
	copy(padded, nameBytes)
	tail = append(tail, padded...)

	data := append(selector, head...)
	return append(data, tail...), nil
}

// --- Solana chain path ---

// SolanaInstructionSender signs and submits instructions as the session
// keypair; implemented by the solana network.
type SolanaInstructionSender interface {
	SendInstructions(ctx context.Context, instructions []solana.Instruction) (string, error)
}

// SNSRegistrarConfig sizes and funds the created name account.
type SNSRegistrarConfig struct {
	Space    uint32 `default:"1000"`
	Lamports uint64 `default:"10000000"`
}

type snsRegistrar struct {
	sender   SolanaInstructionSender
	registry *snsRegistry
	cfg      SNSRegistrarConfig
	logger   *logrus.Entry
}

func NewSNSRegistrar(sender SolanaInstructionSender, registry Registry, cfg SNSRegistrarConfig, logger *logrus.Logger) (Registrar, error) {
	sns, ok := registry.(*snsRegistry)
	if !ok {
		return nil, fmt.Errorf("sns registrar requires the sns registry implementation")
	}
	return &snsRegistrar{
		sender:   sender,
		registry: sns,
		cfg:      cfg,
		logger:   logger.WithField("pkg", "naming"),
	}, nil
}

// Register creates the name account under the .sol root for owner.
func (s *snsRegistrar) Register(ctx context.Context, name string, owner string) (RegisterResult, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("invalid owner address: %w", err)
	}

	hashed := hashName(name)
	nameAccount, err := s.registry.deriveNameAccount(hashed, solana.PublicKey{}, s.registry.rootDomain)
	if err != nil {
		return RegisterResult{}, err
	}

	// Create instruction: tag(0) + hashed name vec + lamports + space.
	data := make([]byte, 0, 4+4+len(hashed)+8+4)
	data = binary.LittleEndian.AppendUint32(data, 0)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(hashed)))
	data = append(data, hashed...)
	data = binary.LittleEndian.AppendUint64(data, s.cfg.Lamports)
	data = binary.LittleEndian.AppendUint32(data, s.cfg.Space)

	inst := solana.NewInstruction(
		s.registry.programID,
		[]*solana.AccountMeta{
			{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
			{PublicKey: ownerKey, IsSigner: true, IsWritable: true},
			{PublicKey: nameAccount, IsSigner: false, IsWritable: true},
			{PublicKey: ownerKey, IsSigner: false, IsWritable: false},
			{PublicKey: s.registry.rootDomain, IsSigner: false, IsWritable: false},
		},
		data,
	)

	sig, err := s.sender.SendInstructions(ctx, []solana.Instruction{inst})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("failed to create name account: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"name": name, "sig": sig}).Info("sns name registered")
	return RegisterResult{TxRef: sig}, nil
}
