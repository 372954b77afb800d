package bulletin

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coresig/signer/chain"
	"github.com/coresig/signer/retry"
)

// HTTPBulletin is a Bulletin implementation talking to the shared bulletin
// service over HTTP(S). The service maps each authenticated signer to its
// own slot, so writes from different signers never collide.
type HTTPBulletin struct {
	endpoint string
	client   *http.Client
	policy   retry.Policy
}

// NewHTTPBulletin builds a client against endpoint. tlsConfig may be nil
// to use the default transport.
func NewHTTPBulletin(endpoint string, tlsConfig *tls.Config, policy retry.Policy) *HTTPBulletin {
	transport := http.DefaultTransport
	if tlsConfig != nil {
		transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
	return &HTTPBulletin{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: 15 * time.Second, Transport: transport},
		policy:   policy,
	}
}

func (b *HTTPBulletin) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	return retry.Do(ctx, b.policy, func() error {
		var bodyReader *bytes.Reader
		if reqBody != nil {
			data, err := json.Marshal(reqBody)
			if err != nil {
				return retry.Permanent(fmt.Errorf("marshal request: %w", err))
			}
			bodyReader = bytes.NewReader(data)
		} else {
			bodyReader = bytes.NewReader(nil)
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, b.endpoint+path, bodyReader)
		if err != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := b.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s: status %d", ErrUnavailable, path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("bulletin: %s: status %d", path, resp.StatusCode))
		}
		if respBody == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, path, err)
		}
		return nil
	})
}

func (b *HTTPBulletin) SendMessageWithRetry(ctx context.Context, msg Message) (Ack, error) {
	var ack Ack
	err := b.doJSON(ctx, http.MethodPost, "/message", msg, &ack)
	return ack, err
}

func (b *HTTPBulletin) GetSignerTransactionsWithRetry(ctx context.Context, signerIDs []uint32) ([]*chain.Transaction, error) {
	strs := make([]string, len(signerIDs))
	for i, id := range signerIDs {
		strs[i] = strconv.FormatUint(uint64(id), 10)
	}
	path := "/transactions?signer_ids=" + strings.Join(strs, ",")
	var txs []*chain.Transaction
	if err := b.doJSON(ctx, http.MethodGet, path, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (b *HTTPBulletin) GetSignerSet(ctx context.Context) (uint32, error) {
	var n uint32
	if err := b.doJSON(ctx, http.MethodGet, "/signer-set", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *HTTPBulletin) GetSignerSlotID(ctx context.Context) (uint32, error) {
	var n uint32
	if err := b.doJSON(ctx, http.MethodGet, "/signer-slot", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

var _ Bulletin = (*HTTPBulletin)(nil)
