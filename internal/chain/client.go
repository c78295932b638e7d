package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"tradeScope/internal/model"
)

// Client is a request/response node client used outside the streaming
// session, e.g. by the inspect command.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	maxRetries   int
	retryBackoff time.Duration

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

const (
	defaultMaxRetries   = 4
	defaultRetryBackoff = 500 * time.Millisecond
)

// NewClient dials the node. Both http(s) and ws(s) URLs are accepted.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient:    rpcClient,
		ethClient:    ethclient.NewClient(rpcClient),
		maxRetries:   defaultMaxRetries,
		retryBackoff: defaultRetryBackoff,
		tsCache:      make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// CallContract performs an eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// Receipt fetches a transaction receipt together with the transaction's
// sender and target.
func (c *Client) Receipt(ctx context.Context, txHash string) (model.Receipt, error) {
	if !isHash(txHash) {
		return model.Receipt{}, fmt.Errorf("invalid tx hash %q", txHash)
	}
	hash := common.HexToHash(txHash)

	var receipt *types.Receipt
	err := withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		var err error
		receipt, err = c.ethClient.TransactionReceipt(ctx, hash)
		return err
	})
	if err != nil {
		return model.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	var tx *types.Transaction
	err = withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		var err error
		tx, _, err = c.ethClient.TransactionByHash(ctx, hash)
		return err
	})
	if err != nil {
		return model.Receipt{}, fmt.Errorf("get transaction: %w", err)
	}

	out := buildReceipt(receipt, tx)
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		out.From = hexLower(from)
	}
	return out, nil
}

func buildReceipt(receipt *types.Receipt, tx *types.Transaction) model.Receipt {
	out := model.Receipt{
		TransactionHash: receipt.TxHash.Hex(),
		Status:          hexutil.EncodeUint64(receipt.Status),
		Logs:            make([]model.RawLog, 0, len(receipt.Logs)),
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = hexutil.EncodeBig(receipt.BlockNumber)
	}
	if tx != nil && tx.To() != nil {
		out.To = hexLower(*tx.To())
	}
	for _, log := range receipt.Logs {
		if log != nil {
			out.Logs = append(out.Logs, buildRawLog(*log))
		}
	}
	return out
}

func buildRawLog(log types.Log) model.RawLog {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.RawLog{
		Address:         hexLower(log.Address),
		Topics:          topics,
		Data:            hexutil.Encode(log.Data),
		BlockNumber:     hexutil.EncodeUint64(log.BlockNumber),
		TransactionHash: log.TxHash.Hex(),
		LogIndex:        hexutil.EncodeUint64(uint64(log.Index)),
		Removed:         log.Removed,
	}
}

func hexLower(addr common.Address) string {
	return hexutil.Encode(addr.Bytes())
}

func isHash(s string) bool {
	if len(s) != 66 || (s[:2] != "0x" && s[:2] != "0X") {
		return false
	}
	_, err := hexutil.Decode("0x" + s[2:])
	return err == nil
}
