// Package analytics fetches per-message engagement counters from the
// analytics sidecar service.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tgcast/internal/task"
	"tgcast/pkg/logx"
)

type Config struct {
	BaseURL string
	Timeout time.Duration // default 15s
}

type Client struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func New(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, log: log, http: &http.Client{Timeout: timeout}}
}

type ref struct {
	Recipient string `json:"recipient_id"`
	MessageID int64  `json:"message_id"`
}

// BatchMetrics requests counters for all receipts in one call. The response
// maps provider message ids to counters; ids the service does not know are
// simply absent, which callers tolerate. A transport or HTTP-level failure
// means the whole batch is unusable.
func (c *Client) BatchMetrics(ctx context.Context, receipts []task.Receipt) (map[int64]task.Metrics, error) {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return nil, fmt.Errorf("analytics base url is not configured")
	}
	refs := make([]ref, 0, len(receipts))
	for _, r := range receipts {
		refs = append(refs, ref{Recipient: r.Recipient, MessageID: r.MessageID})
	}
	body, err := json.Marshal(refs)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/analytics/batch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("analytics batch failed: http=%d", resp.StatusCode)
	}

	// Keys arrive as decimal message-id strings.
	var raw map[string]struct {
		Views     int `json:"views"`
		Forwards  int `json:"forwards"`
		Replies   int `json:"replies"`
		Reactions int `json:"reactions"`
		Voters    int `json:"voters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("analytics batch decode: %w", err)
	}

	out := make(map[int64]task.Metrics, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			c.log.Warn("analytics returned a non-numeric message id", logx.String("key", k))
			continue
		}
		out[id] = task.Metrics{
			Views:     v.Views,
			Forwards:  v.Forwards,
			Replies:   v.Replies,
			Reactions: v.Reactions,
			Voters:    v.Voters,
		}
	}
	return out, nil
}
