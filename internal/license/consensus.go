package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	apperrors "credguard/internal/errors"
)

// PeerVote is one node's answer to a consensus query
type PeerVote struct {
	Valid  bool   `json:"valid"`
	NodeID string `json:"node_id"`
}

// PeerClient asks a peer node whether it accepts a credential
type PeerClient interface {
	Query(ctx context.Context, nodeAddress, credential string) (PeerVote, error)
}

// PeerClientFunc adapts a function to PeerClient
type PeerClientFunc func(ctx context.Context, nodeAddress, credential string) (PeerVote, error)

// Query calls f
func (f PeerClientFunc) Query(ctx context.Context, nodeAddress, credential string) (PeerVote, error) {
	return f(ctx, nodeAddress, credential)
}

// QuorumThreshold is ceil(n/2)
func QuorumThreshold(n int) int {
	return (n + 1) / 2
}

// ConsensusValidator queries every configured peer and passes on a simple quorum
type ConsensusValidator struct {
	nodes   []string
	client  PeerClient
	timeout time.Duration
	metrics *ValidationMetrics
}

// NewConsensusValidator creates a validator over nodes. Each query gets its own timeout.
func NewConsensusValidator(nodes []string, client PeerClient, timeout time.Duration) *ConsensusValidator {
	return &ConsensusValidator{
		nodes:   append([]string(nil), nodes...),
		client:  client,
		timeout: timeout,
	}
}

// Nodes returns the configured peer addresses
func (c *ConsensusValidator) Nodes() []string {
	return append([]string(nil), c.nodes...)
}

type nodeOutcome struct {
	node string
	vote PeerVote
	err  error
}

// Check runs the quorum. Errors and timeouts are non-votes; no node cancels another.
func (c *ConsensusValidator) Check(ctx context.Context, credential string) CheckResult {
	if len(c.nodes) == 0 {
		return CheckResult{
			Method:  MethodConsensus,
			Passed:  true,
			Details: map[string]any{"mode": "single_node"},
		}
	}

	outcomes := make([]nodeOutcome, len(c.nodes))
	var g errgroup.Group
	for i, node := range c.nodes {
		g.Go(func() error {
			outcomes[i] = c.queryNode(ctx, node, credential)
			return nil
		})
	}
	_ = g.Wait()

	votes := 0
	nonVotes := 0
	nodeErrors := make(map[string]string)
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			nonVotes++
			nodeErrors[o.node] = o.err.Error()
		case o.vote.Valid:
			votes++
		}
	}

	threshold := QuorumThreshold(len(c.nodes))
	if c.metrics != nil {
		c.metrics.RecordPeerVotes(ctx, votes, nonVotes)
	}

	details := map[string]any{
		"mode":      "quorum",
		"nodes":     len(c.nodes),
		"votes":     votes,
		"non_votes": nonVotes,
		"threshold": threshold,
	}
	if len(nodeErrors) > 0 {
		details["node_errors"] = nodeErrors
	}

	return CheckResult{
		Method:  MethodConsensus,
		Passed:  votes >= threshold,
		Details: details,
	}
}

func (c *ConsensusValidator) queryNode(ctx context.Context, node, credential string) (out nodeOutcome) {
	out.node = node
	defer func() {
		if r := recover(); r != nil {
			out.err = apperrors.NewNodeQueryError(node, fmt.Errorf("panic: %v", r))
		}
	}()

	qctx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	vote, err := c.client.Query(qctx, node, credential)
	if err != nil {
		out.err = apperrors.NewNodeQueryError(node, err)
		return out
	}
	out.vote = vote
	return out
}

// HTTPPeerClient queries peers over HTTP, with one circuit breaker per node
type HTTPPeerClient struct {
	httpClient  *http.Client
	path        string
	timeout     time.Duration
	maxFailures uint32

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTPPeerClient builds a client posting to path on each node. A breaker opens after
// maxFailures consecutive failures and half-opens after breakerTimeout.
func NewHTTPPeerClient(httpClient *http.Client, path string, breakerTimeout time.Duration, maxFailures uint32) *HTTPPeerClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPPeerClient{
		httpClient:  httpClient,
		path:        path,
		timeout:     breakerTimeout,
		maxFailures: maxFailures,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (p *HTTPPeerClient) breaker(node string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[node]; ok {
		return cb
	}
	maxFailures := p.maxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        node,
		MaxRequests: 5,
		Timeout:     p.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
	p.breakers[node] = cb
	return cb
}

// BreakerStates reports each known node's breaker state
func (p *HTTPPeerClient) BreakerStates() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make(map[string]string, len(p.breakers))
	for node, cb := range p.breakers {
		states[node] = cb.State().String()
	}
	return states
}

type peerVerifyRequest struct {
	Credential string `json:"credential"`
}

// Query implements PeerClient
func (p *HTTPPeerClient) Query(ctx context.Context, nodeAddress, credential string) (PeerVote, error) {
	cb := p.breaker(nodeAddress)

	result, err := cb.Execute(func() (interface{}, error) {
		return p.post(ctx, nodeAddress, credential)
	})
	if err != nil {
		return PeerVote{}, fmt.Errorf("breaker (%s): %w", cb.Name(), err)
	}
	return result.(PeerVote), nil
}

func (p *HTTPPeerClient) post(ctx context.Context, nodeAddress, credential string) (PeerVote, error) {
	body, err := json.Marshal(peerVerifyRequest{Credential: credential})
	if err != nil {
		return PeerVote{}, err
	}

	url := strings.TrimRight(nodeAddress, "/") + p.path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return PeerVote{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return PeerVote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return PeerVote{}, fmt.Errorf("%w: status %d", apperrors.ErrNodeUnavailable, resp.StatusCode)
	}

	var vote PeerVote
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&vote); err != nil {
		return PeerVote{}, fmt.Errorf("decode peer vote: %w", err)
	}
	if vote.NodeID == "" {
		vote.NodeID = nodeAddress
	}
	return vote, nil
}
