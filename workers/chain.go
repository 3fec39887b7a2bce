package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Sentinel errors surfaced by VerifyExchangeTx, one per check, so handlers
// can return the exact cause to the client.
var (
	ErrTxNotFound  = errors.New("transaction not found")
	ErrTxFailed    = errors.New("transaction failed")
	ErrTxWrongTo   = errors.New("wrong contract")
	ErrTxWrongFrom = errors.New("wrong sender")
	ErrTxTooOld    = errors.New("transaction too old")
)

// ConfirmFreshness is how recent an exchange transaction's block must be to
// count as a valid confirmation.
const ConfirmFreshness = 5 * time.Minute

// ChainClient wraps the Ethereum JSON-RPC node the service talks to. The
// chain id is fetched once at startup and reused for sender recovery.
type ChainClient struct {
	eth     *ethclient.Client
	chainID *big.Int
}

func NewChainClient(ctx context.Context) (*ChainClient, error) {
	rpcURL := os.Getenv("ETH_RPC_URL")
	if rpcURL == "" {
		log.Fatal("ETH_RPC_URL environment variable is required")
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial eth node: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	log.Printf("✅ Connected to Ethereum node (chain id %s)", chainID)
	return &ChainClient{eth: eth, chainID: chainID}, nil
}

// TransactionCount returns how many transactions the wallet has ever sent
// (its account nonce).
func (c *ChainClient) TransactionCount(ctx context.Context, wallet string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.eth.NonceAt(ctx, common.HexToAddress(wallet), nil)
}

// VerifyExchangeTx checks that txHash is a mined, successful transaction
// from wallet to the exchange contract, in a block no older than
// ConfirmFreshness. The client's claim of success is never trusted — every
// field is read back from the chain.
func (c *ChainClient) VerifyExchangeTx(ctx context.Context, txHash, wallet, contract string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	hash := common.HexToHash(txHash)

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ErrTxNotFound
		}
		return fmt.Errorf("failed to fetch receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ErrTxFailed
	}

	tx, _, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ErrTxNotFound
		}
		return fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if tx.To() == nil || !strings.EqualFold(tx.To().Hex(), contract) {
		return ErrTxWrongTo
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return fmt.Errorf("failed to recover sender: %w", err)
	}
	if !strings.EqualFold(from.Hex(), wallet) {
		return ErrTxWrongFrom
	}

	header, err := c.eth.HeaderByHash(ctx, receipt.BlockHash)
	if err != nil {
		return fmt.Errorf("failed to fetch block header: %w", err)
	}
	if time.Since(time.Unix(int64(header.Time), 0)) > ConfirmFreshness {
		return ErrTxTooOld
	}

	return nil
}
