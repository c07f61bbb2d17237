package ledger

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/frahmantamala/wallet-settlement/internal"
)

// contractAPI is the subset of the Fabric gateway contract the client needs.
type contractAPI interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
	EvaluateTransaction(name string, args ...string) ([]byte, error)
}

// session is one logged-in gateway connection. Establishing a session is
// expensive (wallet, TLS, discovery), so the client keeps a single session
// and relogs only when a call reports it dropped.
type session interface {
	Contract(name string) contractAPI
	Close()
}

type connectFunc func(cfg internal.LedgerConfig) (session, error)

// Client wraps the permissioned-ledger gateway. One session is shared by all
// callers; (re)establishment is serialized by the mutex, but independent
// invoke/query calls do not hold it while on the wire.
type Client struct {
	cfg     internal.LedgerConfig
	logger  *slog.Logger
	connect connectFunc

	mu   sync.Mutex
	sess session
}

func NewClient(cfg internal.LedgerConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		logger:  logger,
		connect: connectGateway,
	}
}

func (c *Client) session() (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		return c.sess, nil
	}

	sess, err := c.connect(c.cfg)
	if err != nil {
		c.logger.Error("failed to establish ledger session",
			"channel", c.cfg.Channel,
			"error", err)
		return nil, &ConnectionError{Err: err}
	}

	c.logger.Info("ledger session established",
		"channel", c.cfg.Channel,
		"identity", c.cfg.Identity)
	c.sess = sess
	return sess, nil
}

func (c *Client) dropSession(old session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == old && c.sess != nil {
		c.sess.Close()
		c.sess = nil
	}
}

// Invoke submits a state-changing transaction. An empty result payload is a
// legitimate success on this ledger and yields an unconfirmed receipt;
// callers must not treat that as failure.
func (c *Client) Invoke(ctx context.Context, contract, function string, args ...string) (Receipt, error) {
	payload, err := c.call(ctx, contract, func(ca contractAPI) ([]byte, error) {
		return ca.SubmitTransaction(function, args...)
	})
	if err != nil {
		return Unconfirmed(), err
	}

	id := strings.TrimSpace(string(payload))
	if id == "" {
		c.logger.Warn("ledger invoke committed without a transaction reference",
			"contract", contract,
			"function", function)
		return Unconfirmed(), nil
	}
	return ReceiptWithID(id), nil
}

// Query evaluates a read-only transaction and returns the raw string value.
func (c *Client) Query(ctx context.Context, contract, function string, args ...string) (string, error) {
	payload, err := c.call(ctx, contract, func(ca contractAPI) ([]byte, error) {
		return ca.EvaluateTransaction(function, args...)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(payload)), nil
}

type callResult struct {
	payload []byte
	err     error
}

// call runs one gateway call with a single relogin retry on a dropped
// session. The SDK call itself is not cancellable, so cancellation detaches
// it; the transaction may still commit after a timeout.
func (c *Client) call(ctx context.Context, contract string, fn func(contractAPI) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TimeoutError{Err: err}
	}

	payload, err := c.callOnce(ctx, contract, fn)
	if err == nil {
		return payload, nil
	}

	if !IsConnectionError(err) {
		return nil, err
	}

	c.logger.Warn("ledger session dropped, relogging once", "contract", contract, "error", err)
	return c.callOnce(ctx, contract, fn)
}

func (c *Client) callOnce(ctx context.Context, contract string, fn func(contractAPI) ([]byte, error)) ([]byte, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}

	done := make(chan callResult, 1)
	go func() {
		payload, callErr := fn(sess.Contract(contract))
		done <- callResult{payload: payload, err: callErr}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			classified := classify(res.err)
			if IsConnectionError(classified) {
				c.dropSession(sess)
			}
			return nil, classified
		}
		return res.payload, nil
	case <-ctx.Done():
		return nil, &TimeoutError{Err: ctx.Err()}
	}
}

// Ping verifies a session can be established. Used by the readiness probe;
// it does not touch chaincode.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.session()
	return err
}

// Close tears down the gateway session. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		c.sess.Close()
		c.sess = nil
	}
}
