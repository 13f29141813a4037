package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Client wraps go-ethereum RPC and provides helper methods. Every outbound
// request waits on a shared token bucket so bursts of relay traffic and sync
// passes stay under the provider's request quota.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   *rate.Limiter

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outbound requests at rps with the given burst. A
// non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	return c.ethClient.BlockNumber(ctx)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.ethClient.HeaderByNumber(ctx, number)
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// Backend exposes the client as a bind.ContractBackend for transacting. The
// calls that hit the provider on the write path share the client's throttle.
func (c *Client) Backend() bind.ContractBackend {
	return &throttledBackend{Client: c.ethClient, parent: c}
}

type throttledBackend struct {
	*ethclient.Client
	parent *Client
}

func (b *throttledBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.parent.CallContract(ctx, msg, blockNumber)
}

func (b *throttledBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return b.parent.HeaderByNumber(ctx, number)
}

func (b *throttledBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := b.parent.wait(ctx); err != nil {
		return 0, err
	}
	return b.Client.PendingNonceAt(ctx, account)
}

func (b *throttledBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := b.parent.wait(ctx); err != nil {
		return nil, err
	}
	return b.Client.SuggestGasPrice(ctx)
}

func (b *throttledBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if err := b.parent.wait(ctx); err != nil {
		return nil, err
	}
	return b.Client.SuggestGasTipCap(ctx)
}

func (b *throttledBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := b.parent.wait(ctx); err != nil {
		return 0, err
	}
	return b.Client.EstimateGas(ctx, msg)
}

func (b *throttledBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := b.parent.wait(ctx); err != nil {
		return err
	}
	return b.Client.SendTransaction(ctx, tx)
}
