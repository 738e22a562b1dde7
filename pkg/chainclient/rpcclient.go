package chainclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/lightprotocol/forester/pkg/preparation"
	"github.com/lightprotocol/forester/pkg/treetypes"
)

// RPCClient is the go-ethereum-backed reference Client implementation.
// It treats the chain's JSON-RPC account-fetch method as opaque —
// "eth_getAccountInfo" below stands in for whatever the on-chain
// program's RPC surface actually calls it — and decodes the returned
// bytes with the Decoder configured at construction, since parsing
// batched account layouts is the on-chain program's concern, not this
// adapter's (SPEC_FULL.md §1 lists it as an external collaborator).
type RPCClient struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	decoder   Decoder
	signer    *ecdsa.PrivateKey
	chainID   *big.Int

	treeAddress  func(treetypes.TreeID) common.Address
	queueAddress func(treetypes.TreeID) common.Address
}

// Decoder turns raw account bytes into the typed structures the
// coordinator reasons about. Swappable so tests can decode fixtures
// without a live RPC endpoint.
type Decoder interface {
	DecodeTreeAccount(data []byte) (TreeAccount, error)
	DecodeOutputQueueAccount(data []byte) (OutputQueueAccount, error)
}

// NewRPCClient dials url once and reuses the connection for both the
// low-level batched calls (rpc.Client) and the higher-level single calls
// (ethclient.Client) — both wrap the same underlying transport.
func NewRPCClient(url string, chainID int64, decoder Decoder, signer *ecdsa.PrivateKey) (*RPCClient, error) {
	rc, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("chainclient: dial %s: %w", url, err)
	}
	return &RPCClient{
		rpcClient: rc,
		ethClient: ethclient.NewClient(rc),
		decoder:   decoder,
		signer:    signer,
		chainID:   big.NewInt(chainID),
	}, nil
}

// accountInfoCall is one element of the batch request go-ethereum's
// rpc.BatchElem expects.
func accountInfoCall(address common.Address, result *hexutil.Bytes) rpc.BatchElem {
	return rpc.BatchElem{
		Method: "eth_getAccountInfo",
		Args:   []interface{}{address, "latest"},
		Result: result,
	}
}

// FetchTreeAndQueue issues one BatchCallContext covering both accounts —
// the "atomically... one round-trip for both" requirement.
func (c *RPCClient) FetchTreeAndQueue(ctx context.Context, tree treetypes.TreeID) (TreeAccount, OutputQueueAccount, error) {
	var treeData, queueData hexutil.Bytes
	batch := []rpc.BatchElem{
		accountInfoCall(c.treeAddr(tree), &treeData),
		accountInfoCall(c.queueAddr(tree), &queueData),
	}

	if err := c.rpcClient.BatchCallContext(ctx, batch); err != nil {
		return TreeAccount{}, OutputQueueAccount{}, fmt.Errorf("chainclient: batch fetch: %w", err)
	}
	for i, elem := range batch {
		if elem.Error != nil {
			return TreeAccount{}, OutputQueueAccount{}, fmt.Errorf("chainclient: batch element %d: %w", i, elem.Error)
		}
	}

	treeAccount, err := c.decoder.DecodeTreeAccount(treeData)
	if err != nil {
		return TreeAccount{}, OutputQueueAccount{}, fmt.Errorf("chainclient: decode tree account: %w", err)
	}
	queueAccount, err := c.decoder.DecodeOutputQueueAccount(queueData)
	if err != nil {
		return TreeAccount{}, OutputQueueAccount{}, fmt.Errorf("chainclient: decode output queue account: %w", err)
	}
	return treeAccount, queueAccount, nil
}

// FetchRoot issues a single account fetch for post-validation.
func (c *RPCClient) FetchRoot(ctx context.Context, tree treetypes.TreeID) (treetypes.Digest, error) {
	var data hexutil.Bytes
	if err := c.rpcClient.CallContext(ctx, &data, "eth_getAccountInfo", c.treeAddr(tree), "latest"); err != nil {
		return treetypes.Digest{}, fmt.Errorf("chainclient: fetch root: %w", err)
	}
	account, err := c.decoder.DecodeTreeAccount(data)
	if err != nil {
		return treetypes.Digest{}, fmt.Errorf("chainclient: decode tree account: %w", err)
	}
	return account.LatestRoot()
}

// SubmitBatch signs and sends one transaction carrying group's append and
// nullify instructions, in pattern order, via bind.TransactOpts.
func (c *RPCClient) SubmitBatch(ctx context.Context, tree treetypes.TreeID, group []preparation.PreparedBatch) (Signature, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.signer, c.chainID)
	if err != nil {
		return Signature{}, fmt.Errorf("chainclient: build transactor: %w", err)
	}
	auth.Context = ctx

	data := EncodeInterleavedInstructions(group)
	nonce, err := c.ethClient.PendingNonceAt(ctx, crypto.PubkeyToAddress(c.signer.PublicKey))
	if err != nil {
		return Signature{}, fmt.Errorf("chainclient: nonce: %w", err)
	}
	gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return Signature{}, fmt.Errorf("chainclient: gas price: %w", err)
	}

	to := c.queueAddr(tree)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      uint64(300000),
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := auth.Signer(auth.From, tx)
	if err != nil {
		return Signature{}, fmt.Errorf("chainclient: sign: %w", err)
	}
	if err := c.ethClient.SendTransaction(ctx, signedTx); err != nil {
		return Signature{}, fmt.Errorf("chainclient: send: %w", err)
	}

	var sig Signature
	copy(sig[:], signedTx.Hash().Bytes())
	return sig, nil
}

func (c *RPCClient) treeAddr(tree treetypes.TreeID) common.Address {
	if c.treeAddress != nil {
		return c.treeAddress(tree)
	}
	return common.BytesToAddress(tree[:20])
}

func (c *RPCClient) queueAddr(tree treetypes.TreeID) common.Address {
	if c.queueAddress != nil {
		return c.queueAddress(tree)
	}
	return common.BytesToAddress(tree[:20])
}
