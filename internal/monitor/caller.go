package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"tradeScope/internal/dex"
	"tradeScope/internal/wsrpc"
)

// MuxCaller issues eth_call over the streaming socket.
type MuxCaller struct {
	mux *wsrpc.Mux
}

func NewMuxCaller(mux *wsrpc.Mux) *MuxCaller {
	return &MuxCaller{mux: mux}
}

type callArgs struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// CallContract calls to with data against the latest block.
func (c *MuxCaller) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	token := hexutil.Encode(to.Bytes())
	tag := wsrpc.CallDecimals(token)
	if dex.IsSymbolCall(data) {
		tag = wsrpc.CallSymbol(token)
	}

	params := []interface{}{callArgs{To: token, Data: hexutil.Encode(data)}, "latest"}
	raw, err := c.mux.Call(ctx, "eth_call", params, tag)
	var rpcErr *wsrpc.RPCError
	if errors.As(err, &rpcErr) {
		// reverted or missing method: decoders fall back to defaults
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", tag, err)
	}
	out, err := hexutil.Decode(result)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", tag, err)
	}
	return out, nil
}
