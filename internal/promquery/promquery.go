package promquery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/aonescu/remedy/internal/logging"
)

const queryTimeout = 10 * time.Second

// Client runs PromQL queries against a Prometheus server.
type Client struct {
	api promv1.API
}

// New creates a client for the given Prometheus base URL. Username and
// password are optional basic-auth credentials.
func New(address, username, password string) (*Client, error) {
	rt := api.DefaultRoundTripper
	if username != "" {
		rt = &basicAuthRoundTripper{username: username, password: password, next: rt}
	}

	c, err := api.NewClient(api.Config{Address: address, RoundTripper: rt})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &Client{api: promv1.NewAPI(c)}, nil
}

// Query runs an instant query at the current time.
func (c *Client) Query(ctx context.Context, expr string) (model.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	value, warnings, err := c.api.Query(ctx, expr, time.Now())
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	if len(warnings) > 0 {
		log := logging.WithComponent("promquery")
		log.Warn().
			Strs("warnings", warnings).Str("query", expr).
			Msg("prometheus query returned warnings")
	}
	return value, nil
}

// RestartCounts returns per-pod container restart counts for a namespace.
// An empty result is an empty map, not an error.
func (c *Client) RestartCounts(ctx context.Context, namespace string) (map[string]int, error) {
	expr := fmt.Sprintf(`kube_pod_container_status_restarts_total{namespace=%q}`, namespace)

	value, err := c.Query(ctx, expr)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	vector, ok := value.(model.Vector)
	if !ok {
		return counts, nil
	}
	for _, sample := range vector {
		pod := string(sample.Metric["pod"])
		if pod == "" {
			continue
		}
		// A pod can expose several containers; keep the highest count.
		if n := int(sample.Value); n > counts[pod] {
			counts[pod] = n
		}
	}
	return counts, nil
}

type basicAuthRoundTripper struct {
	username string
	password string
	next     http.RoundTripper
}

func (rt *basicAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(rt.username, rt.password)
	return rt.next.RoundTrip(req)
}
