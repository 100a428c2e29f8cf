package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/colorfulnotion/fraudproof/common"
	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

const commitmentHolderABI = `[{
	"type": "function",
	"name": "getIdByTimestamp",
	"stateMutability": "view",
	"inputs": [{"name": "timestamp", "type": "uint256", "internalType": "uint256"}],
	"outputs": [{"name": "", "type": "string", "internalType": "string"}]
}]`

const provingManagerABI = `[{
	"type": "function",
	"name": "verifyAndEmit",
	"stateMutability": "nonpayable",
	"inputs": [
		{"name": "configName", "type": "string", "internalType": "string"},
		{"name": "publicValues", "type": "bytes", "internalType": "bytes"},
		{"name": "proofBytes", "type": "bytes", "internalType": "bytes"}
	],
	"outputs": []
}]`

// Backend is what EthGateway needs from a node connection; *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type EthConfig struct {
	RPCURL              string
	CommitmentHolder    string
	ProvingManager      string
	SignerKey           string // hex secp256k1 key, optional for read-only use
	Confirmations       uint64
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
}

// EthGateway talks to the two contracts over JSON-RPC.
type EthGateway struct {
	backend    Backend
	commitment *bind.BoundContract
	manager    *bind.BoundContract
	signer     *ecdsa.PrivateKey
	cfg        EthConfig
}

func Dial(ctx context.Context, cfg EthConfig) (*EthGateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", fperrors.ErrChainCall, cfg.RPCURL, err)
	}
	return NewEthGateway(client, cfg)
}

func NewEthGateway(backend Backend, cfg EthConfig) (*EthGateway, error) {
	if !ethcommon.IsHexAddress(cfg.CommitmentHolder) {
		return nil, fmt.Errorf("bad commitment holder address %q", cfg.CommitmentHolder)
	}
	if !ethcommon.IsHexAddress(cfg.ProvingManager) {
		return nil, fmt.Errorf("bad proving manager address %q", cfg.ProvingManager)
	}
	holderABI, err := abi.JSON(strings.NewReader(commitmentHolderABI))
	if err != nil {
		return nil, err
	}
	managerABI, err := abi.JSON(strings.NewReader(provingManagerABI))
	if err != nil {
		return nil, err
	}
	g := &EthGateway{
		backend:    backend,
		commitment: bind.NewBoundContract(ethcommon.HexToAddress(cfg.CommitmentHolder), holderABI, backend, backend, backend),
		manager:    bind.NewBoundContract(ethcommon.HexToAddress(cfg.ProvingManager), managerABI, backend, backend, backend),
		cfg:        cfg,
	}
	if cfg.SignerKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("bad signer key: %w", err)
		}
		g.signer = key
	}
	if g.cfg.PollInterval <= 0 {
		g.cfg.PollInterval = time.Second
	}
	return g, nil
}

func (g *EthGateway) AssignmentIDByTimestamp(ctx context.Context, tsSeconds uint64) (string, error) {
	var out []interface{}
	ts := uint256.NewInt(tsSeconds)
	if err := g.commitment.Call(&bind.CallOpts{Context: ctx}, &out, "getIdByTimestamp", ts.ToBig()); err != nil {
		return "", fmt.Errorf("%w: getIdByTimestamp(%d): %v", fperrors.ErrChainCall, tsSeconds, err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("%w: getIdByTimestamp returned %d values", fperrors.ErrChainCall, len(out))
	}
	id, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: getIdByTimestamp returned %T", fperrors.ErrChainCall, out[0])
	}
	return id, nil
}

func (g *EthGateway) SubmitProof(ctx context.Context, configName string, publicValues, proof []byte) (common.Hash, error) {
	if g.signer == nil {
		return common.Hash{}, fmt.Errorf("%w: no signer key configured", fperrors.ErrChainCall)
	}
	chainID, err := g.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: chain id: %v", fperrors.ErrChainCall, err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(g.signer, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	opts.Context = ctx
	tx, err := g.manager.Transact(opts, "verifyAndEmit", configName, publicValues, proof)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: verifyAndEmit: %v", fperrors.ErrChainCall, err)
	}
	log.Info(log.ChainMonitoring, "proof transaction sent", "tx", tx.Hash().Hex(), "config", configName)
	if err := g.waitConfirmed(ctx, tx); err != nil {
		return tx.Hash(), err
	}
	return tx.Hash(), nil
}

// waitConfirmed blocks until tx is mined successfully and buried under
// enough blocks, or the confirmation timeout runs out.
func (g *EthGateway) waitConfirmed(ctx context.Context, tx *ethtypes.Transaction) error {
	return WaitConfirmed(ctx, g.backend, tx, g.cfg.Confirmations, g.cfg.ConfirmationTimeout, g.cfg.PollInterval)
}

type confirmationBackend interface {
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

func WaitConfirmed(ctx context.Context, b confirmationBackend, tx *ethtypes.Transaction, confirmations uint64, timeout, poll time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(ctx, b, tx)
	if err != nil {
		return waitErr(tx, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s in block %v", fperrors.ErrTxReverted, tx.Hash().Hex(), receipt.BlockNumber)
	}
	mined := receipt.BlockNumber.Uint64()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		head, err := b.BlockNumber(ctx)
		if err == nil && head+1 >= mined+confirmations {
			log.Debug(log.ChainMonitoring, "transaction confirmed", "tx", tx.Hash().Hex(), "block", mined, "head", head)
			return nil
		}
		select {
		case <-ctx.Done():
			return waitErr(tx, ctx.Err())
		case <-ticker.C:
		}
	}
}

func waitErr(tx *ethtypes.Transaction, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", fperrors.ErrTxTimeout, tx.Hash().Hex())
	}
	return fmt.Errorf("%w: %s: %v", fperrors.ErrChainCall, tx.Hash().Hex(), err)
}
