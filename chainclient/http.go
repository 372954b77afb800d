package chainclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/retry"
)

// HTTPChainClient is a ChainClient implementation talking JSON-RPC 2.0 over
// HTTP(S) to the chain node, with every call wrapped in retry.Policy's
// exponential backoff.
type HTTPChainClient struct {
	endpoint  string
	authToken string
	client    *http.Client
	policy    retry.Policy
	nextID    atomic.Int64
}

// NewHTTPChainClient builds a client against endpoint. tlsConfig may be nil
// to use the default transport.
func NewHTTPChainClient(endpoint, authToken string, tlsConfig *tls.Config, policy retry.Policy) *HTTPChainClient {
	transport := http.DefaultTransport
	if tlsConfig != nil {
		transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return &HTTPChainClient{
		endpoint:  endpoint,
		authToken: authToken,
		client:    &http.Client{Timeout: 15 * time.Second, Transport: transport},
		policy:    policy,
	}
}

func (c *HTTPChainClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return retry.DoValue(ctx, c.policy, func() (json.RawMessage, error) {
		req := request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
		body, err := json.Marshal(req)
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.authToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return nil, wrapUnavailable(method, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, wrapUnavailable(method, fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return nil, retry.Permanent(fmt.Errorf("chainclient: %s: status %d", method, resp.StatusCode))
		}

		var rpcResp response
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return nil, wrapUnavailable(method, err)
		}
		if rpcResp.Error != nil {
			return nil, retry.Permanent(fmt.Errorf("chainclient: %s: %w", method, rpcResp.Error))
		}
		return rpcResp.Result, nil
	})
}

func (c *HTTPChainClient) GetCurrentRewardCycle(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "getCurrentRewardCycle", nil)
	if err != nil {
		return 0, err
	}
	var cycle uint64
	if err := json.Unmarshal(raw, &cycle); err != nil {
		return 0, fmt.Errorf("decode getCurrentRewardCycle: %w", err)
	}
	return cycle, nil
}

func (c *HTTPChainClient) GetAggregatePublicKey(ctx context.Context, cycle uint64) (chain.Point, bool, error) {
	raw, err := c.call(ctx, "getAggregatePublicKey", map[string]uint64{"cycle": cycle})
	if err != nil {
		return chain.Point{}, false, err
	}
	var hexPoint *string
	if err := json.Unmarshal(raw, &hexPoint); err != nil {
		return chain.Point{}, false, fmt.Errorf("decode getAggregatePublicKey: %w", err)
	}
	if hexPoint == nil {
		return chain.Point{}, false, nil
	}
	point, err := chain.PointFromHex(*hexPoint)
	if err != nil {
		return chain.Point{}, false, fmt.Errorf("decode getAggregatePublicKey point: %w", err)
	}
	return point, true, nil
}

func (c *HTTPChainClient) GetLastRound(ctx context.Context, cycle uint64) (uint64, bool, error) {
	raw, err := c.call(ctx, "getLastRound", map[string]uint64{"cycle": cycle})
	if err != nil {
		return 0, false, err
	}
	var round *uint64
	if err := json.Unmarshal(raw, &round); err != nil {
		return 0, false, fmt.Errorf("decode getLastRound: %w", err)
	}
	if round == nil {
		return 0, false, nil
	}
	return *round, true, nil
}

func (c *HTTPChainClient) GetVoteForAggregatePublicKey(ctx context.Context, round, cycle uint64, origin chain.Address) (chain.Point, bool, error) {
	raw, err := c.call(ctx, "getVoteForAggregatePublicKey", map[string]interface{}{
		"round": round, "cycle": cycle, "origin": string(origin),
	})
	if err != nil {
		return chain.Point{}, false, err
	}
	var hexPoint *string
	if err := json.Unmarshal(raw, &hexPoint); err != nil {
		return chain.Point{}, false, fmt.Errorf("decode getVoteForAggregatePublicKey: %w", err)
	}
	if hexPoint == nil {
		return chain.Point{}, false, nil
	}
	point, err := chain.PointFromHex(*hexPoint)
	if err != nil {
		return chain.Point{}, false, fmt.Errorf("decode getVoteForAggregatePublicKey point: %w", err)
	}
	return point, true, nil
}

func (c *HTTPChainClient) GetAccountNonce(ctx context.Context, address chain.Address) (uint64, error) {
	raw, err := c.call(ctx, "getAccountNonce", map[string]string{"address": string(address)})
	if err != nil {
		return 0, err
	}
	var nonce uint64
	if err := json.Unmarshal(raw, &nonce); err != nil {
		return 0, fmt.Errorf("decode getAccountNonce: %w", err)
	}
	return nonce, nil
}

func (c *HTTPChainClient) GetNodeEpoch(ctx context.Context) (chain.EpochId, error) {
	raw, err := c.call(ctx, "getNodeEpoch", nil)
	if err != nil {
		return 0, err
	}
	var epoch chain.EpochId
	if err := json.Unmarshal(raw, &epoch); err != nil {
		return 0, fmt.Errorf("decode getNodeEpoch: %w", err)
	}
	return epoch, nil
}

func (c *HTTPChainClient) SubmitBlockForValidation(ctx context.Context, block *chain.Block) error {
	_, err := c.call(ctx, "submitBlockForValidation", map[string]interface{}{"block": block})
	return err
}

func (c *HTTPChainClient) SubmitTransaction(ctx context.Context, tx *chain.Transaction) (chain.TxId, error) {
	raw, err := c.call(ctx, "submitTransaction", map[string]interface{}{"transaction": tx})
	if err != nil {
		return "", err
	}
	var txID string
	if err := json.Unmarshal(raw, &txID); err != nil {
		return "", fmt.Errorf("decode submitTransaction: %w", err)
	}
	return chain.TxId(txID), nil
}

func (c *HTTPChainClient) BuildVoteForAggregatePublicKey(ctx context.Context, slot uint32, dkgID uint64, point chain.Point, feeMicroUnits *uint64) (*chain.Transaction, error) {
	raw, err := c.call(ctx, "buildVoteForAggregatePublicKey", map[string]interface{}{
		"slot": slot, "dkg_id": dkgID, "point": point.Hex(), "fee": feeMicroUnits,
	})
	if err != nil {
		return nil, err
	}
	var tx chain.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode buildVoteForAggregatePublicKey: %w", err)
	}
	return &tx, nil
}
