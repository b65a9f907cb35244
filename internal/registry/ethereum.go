package registry

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"opensig/internal/hexutil"
	"opensig/internal/logging"
)

// registryABI describes the opensig registry contract surface the client
// touches: the registration entry point and its event log. The contract
// enforces at-most-once registration per signature hash.
const registryABI = `[
  {
    "type": "function",
    "name": "registerSignature",
    "inputs": [
      {"name": "sig_", "type": "bytes32"},
      {"name": "data_", "type": "bytes"}
    ],
    "outputs": []
  },
  {
    "type": "event",
    "name": "Signature",
    "inputs": [
      {"name": "time", "type": "uint256", "indexed": false},
      {"name": "signer", "type": "address", "indexed": true},
      {"name": "signature", "type": "bytes32", "indexed": true},
      {"name": "data", "type": "bytes", "indexed": false}
    ]
  }
]`

// DefaultGasLimit bounds a registerSignature transaction; registration
// writes one storage slot and emits one event.
const DefaultGasLimit = 200000

// ErrNoSigningKey indicates a publish attempt on a query-only adapter.
var ErrNoSigningKey = errors.New("registry: no signing key configured")

// EthereumConfig configures an Ethereum registry adapter.
type EthereumConfig struct {
	// RPCURL is the JSON-RPC endpoint of a node on the target chain.
	RPCURL string

	// ChainID is the EIP-155 chain id used for transaction signing.
	ChainID uint64

	// Contract is the registry contract address, hex.
	Contract string

	// Key signs registration transactions. Nil makes the adapter
	// query-only; PublishSignature then fails with ErrNoSigningKey.
	Key *ecdsa.PrivateKey

	// GasLimit for registration transactions; 0 uses DefaultGasLimit.
	GasLimit uint64
}

// EthereumRegistry implements Registry against an opensig registry contract
// through an Ethereum JSON-RPC node: queries use eth_getLogs over the
// Signature event with the hash ids as the indexed-signature topic filter,
// and publishes submit EIP-155 signed registerSignature transactions.
type EthereumRegistry struct {
	client   *ethclient.Client
	abi      abi.ABI
	contract common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	gasLimit uint64
	log      *logging.Logger
}

// NewEthereumRegistry dials the RPC endpoint and prepares the contract ABI.
func NewEthereumRegistry(cfg EthereumConfig) (*EthereumRegistry, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("registry: invalid contract address %q", cfg.Contract)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}

	return &EthereumRegistry{
		client:   client,
		abi:      parsed,
		contract: common.HexToAddress(cfg.Contract),
		chainID:  new(big.Int).SetUint64(cfg.ChainID),
		key:      cfg.Key,
		gasLimit: gasLimit,
		log:      logging.Default().WithComponent("registry"),
	}, nil
}

// Close releases the underlying RPC connection.
func (r *EthereumRegistry) Close() {
	r.client.Close()
}

// SignerAddress returns the address of the configured signing key, or the
// zero address for a query-only adapter.
func (r *EthereumRegistry) SignerAddress() common.Address {
	if r.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(r.key.PublicKey)
}

// QuerySignatures implements Querier over eth_getLogs. The ids become the
// OR-filter for the event's indexed signature topic; results come back in
// whatever order the node returns them.
func (r *EthereumRegistry) QuerySignatures(ctx context.Context, ids []string) ([]RawEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sigTopics := make([]common.Hash, 0, len(ids))
	for _, id := range ids {
		sigTopics = append(sigTopics, common.HexToHash(id))
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{r.contract},
		Topics: [][]common.Hash{
			{r.abi.Events["Signature"].Id()},
			nil, // any signer
			sigTopics,
		},
	}

	logs, err := r.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	events := make([]RawEvent, 0, len(logs))
	for _, l := range logs {
		events = append(events, r.decodeLog(l))
	}
	return events, nil
}

// decodeLog converts one event log into a RawEvent. Records that do not
// match the event schema are tagged Malformed instead of dropped.
func (r *EthereumRegistry) decodeLog(l types.Log) RawEvent {
	if len(l.Topics) != 3 {
		r.log.Debug("skipping log with unexpected topics", "tx", l.TxHash.Hex(), "topics", len(l.Topics))
		return RawEvent{Malformed: true}
	}

	var fields struct {
		Time *big.Int
		Data []byte
	}
	if err := r.abi.Unpack(&fields, "Signature", l.Data); err != nil {
		r.log.Debug("undecodable signature event", "tx", l.TxHash.Hex(), "error", err)
		return RawEvent{Malformed: true}
	}

	return RawEvent{
		Time:      fields.Time.Uint64(),
		Signer:    common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
		Signature: l.Topics[2].Hex(),
		Data:      hexutil.Encode0x(fields.Data),
	}
}

// PublishSignature implements Publisher: it packs, signs and submits a
// registerSignature transaction and exposes confirmation through WaitMined.
func (r *EthereumRegistry) PublishSignature(ctx context.Context, signature, data string) (*PublishResult, error) {
	if r.key == nil {
		return nil, ErrNoSigningKey
	}

	payload, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode annotation data: %w", err)
	}

	var sigHash [32]byte
	copy(sigHash[:], common.HexToHash(signature).Bytes())

	input, err := r.abi.Pack("registerSignature", sigHash, payload)
	if err != nil {
		return nil, fmt.Errorf("pack registerSignature: %w", err)
	}

	from := crypto.PubkeyToAddress(r.key.PublicKey)
	nonce, err := r.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, r.contract, big.NewInt(0), r.gasLimit, gasPrice, input)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(r.chainID), r.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := r.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	r.log.Info("signature registration submitted",
		"tx", signedTx.Hash().Hex(),
		"signature", signature)

	return &PublishResult{
		TxHash:        signedTx.Hash().Hex(),
		SignerAddress: from.Hex(),
		Confirm: func(ctx context.Context) error {
			receipt, err := bind.WaitMined(ctx, r.client, signedTx)
			if err != nil {
				return fmt.Errorf("wait mined: %w", err)
			}
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("registry: transaction %s reverted", signedTx.Hash().Hex())
			}
			return nil
		},
	}, nil
}
