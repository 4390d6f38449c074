// Package execution implements the typed execution-layer façade: a single
// GetBlock operation that tries a Blockscout-style endpoint first, then
// falls back to an Etherscan-compatible one, waiting one slot duration in
// between.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	apiclient "github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/reliable"
)

// minerRewardType is the Blockscout reward-entry type this client reads;
// other reward types on the same block (e.g. uncle rewards) are ignored.
const minerRewardType = "Miner Reward"

// BlockReward is the normalized result of GetBlock: a single miner payout,
// amount as an arbitrary-precision decimal.
type BlockReward struct {
	BlockNumber uint64
	Address     string
	Timestamp   time.Time
	Amount      decimal.Decimal
}

// Client wraps two HTTP endpoints: a Blockscout-style primary and an
// optional Etherscan-compatible backup. Each endpoint has its own
// bounded-parallelism Gate, distinct from the CL reliable.Client's gates
// since the execution node type is its own pool.
type Client struct {
	blockscout     *apiclient.Client
	blockscoutGate *reliable.Gate
	etherscan      *apiclient.Client
	etherscanGate  *reliable.Gate
	etherscanKey   string
	chainID        uint64
	waitBetween    time.Duration
	log            logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithEtherscan configures the Etherscan-compatible backup endpoint
// (EXECUTION_API_BKP_URL), its concurrency gate, and its API key
// (EXECUTION_API_BKP_KEY).
func WithEtherscan(cl *apiclient.Client, gate *reliable.Gate, apiKey string) Option {
	return func(c *Client) {
		c.etherscan = cl
		c.etherscanGate = gate
		c.etherscanKey = apiKey
	}
}

// WithChainID sets the chainid query parameter Etherscan-compatible APIs
// require.
func WithChainID(id uint64) Option {
	return func(c *Client) {
		c.chainID = id
	}
}

// WithWaitBetween overrides the delay between the Blockscout attempt and
// the Etherscan fallback; it defaults to one Ethereum slot.
func WithWaitBetween(d time.Duration) Option {
	return func(c *Client) {
		c.waitBetween = d
	}
}

// New builds a Client around a mandatory Blockscout-style endpoint and its
// concurrency gate.
func New(blockscout *apiclient.Client, blockscoutGate *reliable.Gate, log logrus.FieldLogger, opts ...Option) *Client {
	c := &Client{blockscout: blockscout, blockscoutGate: blockscoutGate, chainID: 1, waitBetween: 12 * time.Second, log: log}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetBlock fetches the miner reward for blockNumber, trying Blockscout
// first and falling back to Etherscan on any error.
func (c *Client) GetBlock(ctx context.Context, blockNumber uint64) (*BlockReward, error) {
	reward, err := c.getBlockscout(ctx, blockNumber)
	if err == nil {
		return reward, nil
	}
	if c.log != nil {
		c.log.WithError(err).WithField("block", blockNumber).Warn("blockscout lookup failed, falling back to etherscan")
	}

	if c.etherscan == nil {
		return nil, errors.Wrap(err, "blockscout failed and no etherscan-compatible fallback is configured")
	}

	select {
	case <-time.After(c.waitBetween):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return c.getEtherscan(ctx, blockNumber)
}

type blockscoutResponse struct {
	Miner struct {
		Hash string `json:"hash"`
	} `json:"miner"`
	Rewards []struct {
		Type   string `json:"type"`
		Reward string `json:"reward"`
	} `json:"rewards"`
	Timestamp string `json:"timestamp"`
	Height    string `json:"height"`
}

func (c *Client) getBlockscout(ctx context.Context, blockNumber uint64) (*BlockReward, error) {
	path := fmt.Sprintf("/api/v2/blocks/%d", blockNumber)
	req, err := c.blockscout.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build blockscout request")
	}
	req = req.WithContext(ctx)

	if c.blockscoutGate != nil {
		if err := c.blockscoutGate.Acquire(ctx); err != nil {
			return nil, errors.Wrap(err, "acquire blockscout gate")
		}
		defer c.blockscoutGate.Release()
	}

	res, err := c.blockscout.HTTP().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute blockscout request")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read blockscout response")
	}
	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("blockscout returned status %d: %s", res.StatusCode, string(raw))
	}

	var body blockscoutResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrap(err, "unmarshal blockscout response")
	}

	var rewardStr string
	for _, r := range body.Rewards {
		if r.Type == minerRewardType {
			rewardStr = r.Reward
			break
		}
	}
	if rewardStr == "" {
		return nil, errors.Errorf("blockscout response for block %d has no %q reward entry", blockNumber, minerRewardType)
	}
	amount, err := decimal.NewFromString(rewardStr)
	if err != nil {
		return nil, errors.Wrap(err, "parse blockscout reward amount")
	}

	ts, err := parseBlockscoutTimestamp(body.Timestamp)
	if err != nil {
		return nil, errors.Wrap(err, "parse blockscout timestamp")
	}

	return &BlockReward{
		BlockNumber: blockNumber,
		Address:     body.Miner.Hash,
		Timestamp:   ts,
		Amount:      amount,
	}, nil
}

func parseBlockscoutTimestamp(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  struct {
		BlockMiner  string `json:"blockMiner"`
		TimeStamp   string `json:"timeStamp"`
		BlockReward string `json:"blockReward"`
		BlockNumber string `json:"blockNumber"`
	} `json:"result"`
}

func (c *Client) getEtherscan(ctx context.Context, blockNumber uint64) (*BlockReward, error) {
	path := fmt.Sprintf(
		"/api?chainid=%d&module=block&action=getblockreward&blockno=%d&apikey=%s",
		c.chainID, blockNumber, c.etherscanKey,
	)
	req, err := c.etherscan.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build etherscan request")
	}
	req = req.WithContext(ctx)

	if c.etherscanGate != nil {
		if err := c.etherscanGate.Acquire(ctx); err != nil {
			return nil, errors.Wrap(err, "acquire etherscan gate")
		}
		defer c.etherscanGate.Release()
	}

	res, err := c.etherscan.HTTP().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "execute etherscan request")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read etherscan response")
	}
	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("etherscan returned status %d: %s", res.StatusCode, string(raw))
	}

	var body etherscanResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrap(err, "unmarshal etherscan response")
	}
	if body.Status != "" && body.Status != "1" {
		return nil, errors.Errorf("etherscan error for block %d: %s", blockNumber, body.Message)
	}

	amount, err := decimal.NewFromString(body.Result.BlockReward)
	if err != nil {
		return nil, errors.Wrap(err, "parse etherscan reward amount")
	}

	secs, err := strconv.ParseInt(body.Result.TimeStamp, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse etherscan timestamp")
	}

	n := blockNumber
	if body.Result.BlockNumber != "" {
		if parsed, err := strconv.ParseUint(body.Result.BlockNumber, 10, 64); err == nil {
			n = parsed
		}
	}

	return &BlockReward{
		BlockNumber: n,
		Address:     body.Result.BlockMiner,
		Timestamp:   time.Unix(secs, 0).UTC(),
		Amount:      amount,
	}, nil
}
