package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/beamline-tools/beamsync/api"
)

const defaultFetchTimeout = 30 * time.Second

// Client fetches schedule documents from the facility scheduling service.
// The zero value is not usable; construct with NewClient.
type Client struct {
	base    string
	token   string
	httpc   *http.Client
	timeout time.Duration
}

// NewClient builds a client for the service rooted at baseURL. token, if
// non-empty, is sent as a bearer Authorization header on every request.
func NewClient(baseURL, token string) *Client {
	return &Client{
		base:    baseURL,
		token:   token,
		httpc:   &http.Client{},
		timeout: defaultFetchTimeout,
	}
}

// FetchActivities retrieves the activity list for one (run, beamline) pair.
// Any failure here is fatal to the run: without a schedule there is nothing
// to reconcile against.
func (c *Client) FetchActivities(ctx context.Context, runName, beamlineID string) ([]api.Activity, error) {
	u := fmt.Sprintf("%s/activity/findByRunNameAndBeamlineId/%s/%s",
		c.base, url.PathEscape(runName), url.PathEscape(beamlineID))
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var activities []api.Activity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, fmt.Errorf("decode schedule document: %w", err)
	}
	return activities, nil
}

// FetchRuns retrieves the list of synchrotron operating periods.
func (c *Client) FetchRuns(ctx context.Context) ([]api.SyncRun, error) {
	body, err := c.get(ctx, c.base+"/run/getAllRuns")
	if err != nil {
		return nil, err
	}
	var runs []api.SyncRun
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, fmt.Errorf("decode runs document: %w", err)
	}
	return runs, nil
}

// FetchRaw retrieves a schedule document without decoding it, for ad hoc
// inspection.
func (c *Client) FetchRaw(ctx context.Context, runName, beamlineID string) ([]byte, error) {
	u := fmt.Sprintf("%s/activity/findByRunNameAndBeamlineId/%s/%s",
		c.base, url.PathEscape(runName), url.PathEscape(beamlineID))
	return c.get(ctx, u)
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", u, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// LoadActivitiesFile decodes a schedule document previously saved to disk.
// Operators cache documents locally so a run can be repeated without the
// scheduling service being reachable.
func LoadActivitiesFile(path string) ([]api.Activity, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	var activities []api.Activity
	if err := json.Unmarshal(content, &activities); err != nil {
		return nil, fmt.Errorf("decode schedule file %s: %w", path, err)
	}
	return activities, nil
}
