package blocks

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// HeaderReader is the subset of ethclient.Client used by RPCResolver.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// RPCResolver finds the block at or before an instant by binary search over
// header timestamps. It needs no API key, only a JSON-RPC endpoint, and costs
// about log2(head) header reads per lookup.
type RPCResolver struct {
	headers HeaderReader
}

// NewRPCResolver creates a resolver over an existing header source.
func NewRPCResolver(headers HeaderReader) *RPCResolver {
	return &RPCResolver{headers: headers}
}

// DialRPC connects to a JSON-RPC endpoint.
func DialRPC(ctx context.Context, url string) (*RPCResolver, func(), error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("blocks: dial rpc: %w", err)
	}
	return NewRPCResolver(client), client.Close, nil
}

// BlockAt implements Resolver.
func (r *RPCResolver) BlockAt(ctx context.Context, t time.Time) (int64, error) {
	head, err := r.headers.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("blocks: latest header: %w", err)
	}
	target := uint64(t.Unix())
	if head.Time <= target {
		return head.Number.Int64(), nil
	}

	genesis, err := r.headers.HeaderByNumber(ctx, big.NewInt(0))
	if err != nil {
		return 0, fmt.Errorf("blocks: genesis header: %w", err)
	}
	if genesis.Time > target {
		return 0, fmt.Errorf("blocks: %s predates genesis", t.UTC().Format(time.RFC3339))
	}

	// Invariant: time(lo) <= target < time(hi).
	lo, hi := int64(0), head.Number.Int64()
	for hi-lo > 1 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mid := lo + (hi-lo)/2
		h, err := r.headers.HeaderByNumber(ctx, big.NewInt(mid))
		if err != nil {
			return 0, fmt.Errorf("blocks: header %d: %w", mid, err)
		}
		if h.Time <= target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}
