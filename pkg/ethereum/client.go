package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smallyunet/ethpayload/pkg/config"
	"github.com/smallyunet/ethpayload/pkg/jwt"
)

// Client talks JSON-RPC to an execution client's Engine API endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	secret     jwt.Secret // nil disables authentication
	nextID     atomic.Uint64
	logger     *slog.Logger
}

// NewClient creates a new Engine API client from cfg. The JWT secret is
// optional; when the file cannot be read requests go out unauthenticated.
func NewClient(cfg *config.Config) (*Client, error) {
	endpoint, err := normalizeEndpoint(cfg.Engine.Endpoint)
	if err != nil {
		return nil, err
	}

	timeout := 10 * time.Second
	if cfg.Engine.Timeout > 0 {
		timeout = time.Duration(cfg.Engine.Timeout) * time.Second
	}

	logger := slog.Default().With("component", "engine-client")

	var secret jwt.Secret
	if cfg.Engine.JWTSecret != "" {
		secret, err = jwt.LoadSecret(cfg.Engine.JWTSecret)
		if err != nil {
			logger.Warn("Unable to load JWT secret, engine calls will be unauthenticated", "path", cfg.Engine.JWTSecret, "error", err)
			secret = nil
		} else {
			logger.Debug("JWT secret loaded", "path", cfg.Engine.JWTSecret)
		}
	}

	logger.Info("Initializing engine client", "endpoint", endpoint, "timeout", timeout)

	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		secret:     secret,
		logger:     logger,
	}, nil
}

// Endpoint returns the normalized endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// normalizeEndpoint adds a default http scheme and rejects schemes the HTTP
// transport cannot serve.
func normalizeEndpoint(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("engine endpoint cannot be empty")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid engine endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported engine endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("engine endpoint %q has no host", raw)
	}
	return u.String(), nil
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

// RPCError is an error object returned by the execution client.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error: %d %s", e.Code, e.Message)
}

// Call makes a JSON-RPC call. engine_* methods carry a Bearer token when a
// secret is configured.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (result json.RawMessage, err error) {
	timer := prometheus.NewTimer(rpcDuration.WithLabelValues(method))
	defer timer.ObserveDuration()
	defer func() {
		rpcRequests.WithLabelValues(method).Inc()
		if err != nil {
			rpcErrors.WithLabelValues(method).Inc()
		}
	}()

	if params == nil {
		params = []interface{}{}
	}
	request := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request [%s]: %w", method, err)
	}

	c.logger.Debug("Calling engine method", "method", method, "id", request.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if strings.HasPrefix(method, "engine_") && c.secret != nil {
		token, err := jwt.GenerateToken(c.secret, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request [%s]: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP request [%s] failed with status code: %d", method, resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response jsonRPCResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		c.logger.Debug("Undecodable engine response", "method", method, "body", string(respBody))
		return nil, fmt.Errorf("failed to unmarshal response [%s]: %w", method, err)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	return response.Result, nil
}

// CheckConnection verifies connectivity to the execution client.
func (c *Client) CheckConnection(ctx context.Context) (string, error) {
	methods := []string{"eth_chainId", "net_version", "web3_clientVersion"}

	var lastError error
	for _, method := range methods {
		_, err := c.Call(ctx, method, nil)
		if err == nil {
			return fmt.Sprintf("Connected using %s", method), nil
		}
		lastError = err
		c.logger.Debug("Connection check failed, trying next method", "method", method, "error", err)
	}
	return "", fmt.Errorf("all connection methods failed, last error: %w", lastError)
}
