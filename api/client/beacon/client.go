// Package beacon implements the typed consensus-layer API façade:
// committees, sync committees, blocks, rewards, validators and proposer
// duties, all executed through a shared reliable.Client.
package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/reliable"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
)

const (
	getCommitteesPathFmt            = "/eth/v1/beacon/states/%s/committees"
	getSyncCommitteesPathFmt        = "/eth/v1/beacon/states/%d/sync_committees"
	getBlockPathFmt                 = "/eth/v2/beacon/blocks/%s"
	getAttestationRewardsPathFmt    = "/eth/v1/beacon/rewards/attestations/%d"
	getBlockRewardsPathFmt          = "/eth/v1/beacon/rewards/blocks/%s"
	getSyncCommitteeRewardsPathFmt  = "/eth/v1/beacon/rewards/sync_committee/%s"
	getValidatorsPathFmt            = "/eth/v1/beacon/states/%s/validators"
	getValidatorsBalancesPathFmt    = "/eth/v1/beacon/states/%s/validator_balances"
	getValidatorProposerDutiesPathFmt = "/eth/v1/validator/duties/proposer/%d"
	getNodeVersionPath              = "/eth/v1/node/version"
)

// Client is the typed consensus-layer façade, built over a reliable.Client
// shared with every other caller in the process.
type Client struct {
	rc  *reliable.Client
	log logrus.FieldLogger
}

// NewClient wraps an already-constructed reliable.Client.
func NewClient(rc *reliable.Client, log logrus.FieldLogger) *Client {
	return &Client{rc: rc, log: log}
}

func doJSON(ctx context.Context, ep *reliable.Endpoint, method, path string, body interface{}, out interface{}) error {
	ref, err := url.Parse(path)
	if err != nil {
		return errors.Wrap(err, "parse request path")
	}
	u := ep.BaseURL.ResolveReference(ref)

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request body")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := ep.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute request")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	if res.StatusCode == http.StatusNotFound {
		return newHTTPStatusError(http.StatusNotFound, string(raw))
	}
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d: %s", res.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrap(err, "unmarshal response envelope")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "unmarshal response data")
	}
	return nil
}

// httpStatusError carries the HTTP status code so slotMissedHandler can
// recognize a 404 without string-matching the body.
type httpStatusError struct {
	status int
	body   string
}

func newHTTPStatusError(status int, body string) error {
	return &httpStatusError{status: status, body: body}
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.status, e.body)
}

// slotMissedHandler is the errorHandler for endpoints where a 404 means
// the slot had no block: it turns the 404 into the indexererr.ErrSlotMissed
// sentinel instead of a retryable failure.
func slotMissedHandler(err error) (interface{}, bool) {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.status == http.StatusNotFound {
		return indexererr.ErrSlotMissed, true
	}
	return nil, false
}

// nodeVersionPattern matches "Implementation/semver (systemInfo)" or
// "Implementation/semver" or "implementation/semver/systemInfo" (teku-style).
var nodeVersionPattern = regexp.MustCompile(`^([A-Za-z]+)/(v[0-9][^\s/]*)(?:[\s/](.*))?$`)

// ErrInvalidNodeVersion is returned by parseNodeVersion when raw does not
// match the "Implementation/semver ..." shape.
var ErrInvalidNodeVersion = errors.New("invalid node version string")

// NodeVersion is the parsed form of the CL node's self-reported version
// string, used only for a one-line startup log.
type NodeVersion struct {
	implementation string
	semver         string
	systemInfo     string
}

func parseNodeVersion(raw string) (*NodeVersion, error) {
	m := nodeVersionPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, ErrInvalidNodeVersion
	}
	return &NodeVersion{
		implementation: m[1],
		semver:         m[2],
		systemInfo:     strings.TrimSpace(m[3]),
	}, nil
}

// ParseNodeVersion is the exported form of parseNodeVersion.
func ParseNodeVersion(raw string) (*NodeVersion, error) {
	return parseNodeVersion(raw)
}

func (n *NodeVersion) String() string {
	if n.systemInfo == "" {
		return fmt.Sprintf("%s/%s", n.implementation, n.semver)
	}
	return fmt.Sprintf("%s/%s (%s)", n.implementation, n.semver, n.systemInfo)
}

// StateID selects which beacon state a states/{state}/... endpoint reads
// from: either a named alias ("head", "finalized", "genesis") or a slot
// number.
type StateID string

const (
	StateHead      StateID = "head"
	StateFinalized StateID = "finalized"
	StateGenesis   StateID = "genesis"
)

// StateAtSlot builds the StateID addressing the state as of a specific
// slot.
func StateAtSlot(slot uint64) StateID {
	return StateID(strconv.FormatUint(slot, 10))
}

// doSlotMissed runs attempt with slotMissedHandler wired in, translating a
// 404 into indexererr.ErrSlotMissed rather than a retryable failure.
func (c *Client) doSlotMissed(ctx context.Context, preferred reliable.NodeType, attempt reliable.AttemptFunc) (interface{}, error) {
	v, err := c.rc.Do(ctx, preferred, attempt, slotMissedHandler)
	if err != nil {
		return nil, err
	}
	if sentinel, ok := v.(error); ok && sentinel == indexererr.ErrSlotMissed {
		return nil, indexererr.ErrSlotMissed
	}
	return v, nil
}

func withEpochQuery(path string, epoch uint64) string {
	u := url.URL{Path: path}
	q := u.Query()
	q.Set("epoch", strconv.FormatUint(epoch, 10))
	u.RawQuery = q.Encode()
	return u.RequestURI()
}

func idsBody(ids []uint32) map[string][]string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.FormatUint(uint64(id), 10)
	}
	return map[string][]string{"ids": strs}
}

// GetCommittees fetches the committee assignments for epoch as of state.
func (c *Client) GetCommittees(ctx context.Context, state StateID, epoch uint64) ([]Committee, error) {
	path := withEpochQuery(fmt.Sprintf(getCommitteesPathFmt, state), epoch)
	v, err := c.rc.Do(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out []Committee
		if err := doJSON(ctx, ep, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return v.([]Committee), nil
}

// GetSyncCommittees fetches the sync committee assignments as of the state
// at startSlot, for the epoch containing it.
func (c *Client) GetSyncCommittees(ctx context.Context, startSlot, epoch uint64) (*SyncCommittee, error) {
	path := withEpochQuery(fmt.Sprintf(getSyncCommitteesPathFmt, startSlot), epoch)
	v, err := c.rc.Do(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out SyncCommittee
		if err := doJSON(ctx, ep, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return v.(*SyncCommittee), nil
}

// GetBlock fetches the full block at slot. A missing slot returns
// indexererr.ErrSlotMissed.
func (c *Client) GetBlock(ctx context.Context, slot uint64) (*Block, error) {
	path := fmt.Sprintf(getBlockPathFmt, strconv.FormatUint(slot, 10))
	v, err := c.doSlotMissed(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out Block
		if err := doJSON(ctx, ep, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*Block), nil
}

// GetAttestationRewards fetches per-validator attestation rewards for
// epoch, restricted to ids when non-empty.
func (c *Client) GetAttestationRewards(ctx context.Context, epoch uint64, ids []uint32) (*AttestationRewards, error) {
	path := fmt.Sprintf(getAttestationRewardsPathFmt, epoch)
	var body interface{}
	if len(ids) > 0 {
		idStrs := make([]string, len(ids))
		for i, id := range ids {
			idStrs[i] = strconv.FormatUint(uint64(id), 10)
		}
		body = idStrs
	}
	v, err := c.rc.Do(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out AttestationRewards
		if err := doJSON(ctx, ep, http.MethodPost, path, body, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return v.(*AttestationRewards), nil
}

// GetBlockRewards fetches the block-proposal reward breakdown for slot. A
// missing slot returns indexererr.ErrSlotMissed.
func (c *Client) GetBlockRewards(ctx context.Context, slot uint64) (*BlockRewards, error) {
	path := fmt.Sprintf(getBlockRewardsPathFmt, strconv.FormatUint(slot, 10))
	v, err := c.doSlotMissed(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out BlockRewards
		if err := doJSON(ctx, ep, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*BlockRewards), nil
}

// GetSyncCommitteeRewards fetches per-validator sync committee rewards for
// slot, restricted to ids when non-empty. A missing slot returns
// indexererr.ErrSlotMissed.
func (c *Client) GetSyncCommitteeRewards(ctx context.Context, slot uint64, ids []uint32) ([]SyncCommitteeReward, error) {
	path := fmt.Sprintf(getSyncCommitteeRewardsPathFmt, strconv.FormatUint(slot, 10))
	var body interface{}
	if len(ids) > 0 {
		idStrs := make([]string, len(ids))
		for i, id := range ids {
			idStrs[i] = strconv.FormatUint(uint64(id), 10)
		}
		body = idStrs
	}
	v, err := c.doSlotMissed(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out []SyncCommitteeReward
		if err := doJSON(ctx, ep, http.MethodPost, path, body, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]SyncCommitteeReward), nil
}

// GetValidators fetches validator records as of state, restricted to ids
// and/or statuses when non-empty.
func (c *Client) GetValidators(ctx context.Context, state StateID, ids []uint32, statuses []string) ([]Validator, error) {
	path := fmt.Sprintf(getValidatorsPathFmt, state)
	body := map[string]interface{}{}
	if len(ids) > 0 {
		b := idsBody(ids)
		body["id"] = b["ids"]
	}
	if len(statuses) > 0 {
		body["status"] = statuses
	}
	v, err := c.rc.Do(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out []Validator
		if err := doJSON(ctx, ep, http.MethodPost, path, body, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return v.([]Validator), nil
}

// GetValidatorsBalances fetches raw balances as of state, restricted to ids
// when non-empty.
func (c *Client) GetValidatorsBalances(ctx context.Context, state StateID, ids []uint32) ([]ValidatorBalance, error) {
	path := fmt.Sprintf(getValidatorsBalancesPathFmt, state)
	var body interface{}
	if len(ids) > 0 {
		body = idsBody(ids)["ids"]
	}
	v, err := c.rc.Do(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out []ValidatorBalance
		if err := doJSON(ctx, ep, http.MethodPost, path, body, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return v.([]ValidatorBalance), nil
}

// GetValidatorProposerDuties fetches the proposer schedule for epoch.
func (c *Client) GetValidatorProposerDuties(ctx context.Context, epoch uint64) ([]ProposerDuty, error) {
	path := fmt.Sprintf(getValidatorProposerDutiesPathFmt, epoch)
	v, err := c.rc.Do(ctx, reliable.Primary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out []ProposerDuty
		if err := doJSON(ctx, ep, http.MethodGet, path, nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return v.([]ProposerDuty), nil
}

// FetchNodeVersion calls getNodeVersionPath and parses the result.
func (c *Client) FetchNodeVersion(ctx context.Context) (*NodeVersion, error) {
	v, err := c.rc.Do(ctx, reliable.Secondary, func(ctx context.Context, ep *reliable.Endpoint) (interface{}, error) {
		var out struct {
			Version string `json:"version"`
		}
		if err := doJSON(ctx, ep, http.MethodGet, getNodeVersionPath, nil, &out); err != nil {
			return nil, err
		}
		return out.Version, nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return parseNodeVersion(v.(string))
}

// IsHealthy satisfies HealthClient: a node is considered healthy if it
// answers its version endpoint with a parsable version. The parsed version
// itself is not logged and never drives behavior.
func (c *Client) IsHealthy(ctx context.Context) bool {
	_, err := c.FetchNodeVersion(ctx)
	return err == nil
}
