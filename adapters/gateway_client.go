package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mobilus-to-mqtt/application"

	"github.com/rs/zerolog"
)

const (
	GatewayDefaultTimeout = 30 * time.Second
	GatewayDefaultPath    = "/api"
)

var (
	ErrGatewayStatus = fmt.Errorf("unexpected gateway status")
)

type GatewayClientParams struct {
	Host     string
	Username string
	Password string

	Path    string
	Timeout time.Duration

	HTTPClient *http.Client

	Log zerolog.Logger
}

func (g *GatewayClientParams) EnsureDefaults() {
	if g.Path == "" {
		g.Path = GatewayDefaultPath
	}
	if g.Timeout == 0 {
		g.Timeout = GatewayDefaultTimeout
	}
	if g.HTTPClient == nil {
		g.HTTPClient = &http.Client{Timeout: g.Timeout}
	}
}

// GatewayClient posts command batches to the gateway API endpoint.
type GatewayClient struct {
	params GatewayClientParams

	url string

	log zerolog.Logger
}

func NewGatewayClient(params GatewayClientParams) (*GatewayClient, error) {
	if params.Host == "" {
		return nil, fmt.Errorf("gateway host is required")
	}
	params.EnsureDefaults()

	base := params.Host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &GatewayClient{
		params: params,
		url:    strings.TrimRight(base, "/") + params.Path,
		log:    params.Log,
	}, nil
}

func (g *GatewayClient) Call(ctx context.Context, commands ...application.Command) (string, error) {
	body, err := json.Marshal(commands)
	if err != nil {
		return "", fmt.Errorf("encode commands: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.params.Username, g.params.Password)

	start := time.Now()
	resp, err := g.params.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read gateway response: %w", err)
	}

	g.log.Debug().
		Int("commands", len(commands)).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("gateway call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %d", ErrGatewayStatus, resp.StatusCode)
	}

	return string(data), nil
}

var _ application.GatewayClient = &GatewayClient{}
