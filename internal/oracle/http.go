package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

// DefaultTimeout bounds one remote draw.
const DefaultTimeout = 10 * time.Second

// HTTPOracle requests randomness from a remote VRF service. The service
// receives the draw request as JSON and answers with random_number,
// oracle_id and an optional proof.
type HTTPOracle struct {
	id       settlement.Identity
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ settlement.IdentifiedOracle = (*HTTPOracle)(nil)

// NewHTTPOracle creates a client for endpoint. id is the identity the
// service is expected to answer as.
func NewHTTPOracle(id settlement.Identity, endpoint, apiKey string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPOracle{
		id:       id,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (o *HTTPOracle) ID() settlement.Identity { return o.id }

func (o *HTTPOracle) Draw(ctx context.Context, req settlement.DrawRequest) (settlement.RandomResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return settlement.RandomResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return settlement.RandomResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return settlement.RandomResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return settlement.RandomResponse{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return settlement.RandomResponse{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return parseResponse(data)
}

func parseResponse(data []byte) (settlement.RandomResponse, error) {
	if !gjson.ValidBytes(data) {
		return settlement.RandomResponse{}, fmt.Errorf("%w: malformed response", ErrUnavailable)
	}
	value := gjson.GetBytes(data, "random_number")
	if value.Type != gjson.Number {
		return settlement.RandomResponse{}, fmt.Errorf("%w: random_number missing", ErrUnavailable)
	}
	return settlement.RandomResponse{
		OracleID: settlement.Identity(gjson.GetBytes(data, "oracle_id").String()),
		Value:    value.Uint(),
		Proof:    gjson.GetBytes(data, "proof").String(),
	}, nil
}
