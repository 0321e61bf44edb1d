package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
)

// headerSource is the surface BlockTimestamp relies on; the assertion keeps
// the wrapper from being trimmed out from under its call site.
type headerSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

var _ headerSource = (*Client)(nil)

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient(context.Background(), "foo://bar"); err == nil {
		t.Fatal("dial with unknown scheme succeeded")
	}
}
