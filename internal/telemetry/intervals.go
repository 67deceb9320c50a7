package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/httputil"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/security"
	"github.com/formcheck/formcheck/internal/timeutil"
)

// DefaultBaseURL is the fitness platform's API root.
const DefaultBaseURL = "https://intervals.icu/api/v1"

// basicAuthUser is the fixed user name the platform expects alongside an API key.
const basicAuthUser = "API_KEY"

// Activity is the subset of the activity listing the sync uses.
type Activity struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	StartDateLocal string `json:"start_date_local"`
}

// IsRide reports whether the activity is any flavour of bike ride.
func (a Activity) IsRide() bool {
	return strings.Contains(strings.ToLower(a.Type), "ride")
}

// FileStem names the activity's local files: {type}_{YYYY_MM_DD_HHMM}_{id}.
func (a Activity) FileStem() (string, error) {
	start, err := time.Parse("2006-01-02T15:04:05", a.StartDateLocal)
	if err != nil {
		return "", fmt.Errorf("activity %s: parse start_date_local: %w", a.ID, err)
	}
	return fmt.Sprintf("%s_%s_%s", security.SafeName(a.Type), start.Format("2006_01_02_1504"), security.SafeName(a.ID)), nil
}

// Client talks to the fitness platform's REST API.
type Client struct {
	baseURL   string
	athleteID string
	apiKey    string
	http      httputil.HTTPClient
	clock     timeutil.Clock
}

// NewClient builds a client. A nil hc or clock falls back to the real ones.
func NewClient(baseURL, athleteID, apiKey string, hc httputil.HTTPClient, clock timeutil.Clock) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		athleteID: athleteID,
		apiKey:    apiKey,
		http:      hc,
		clock:     clock,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(basicAuthUser, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// Activities lists the athlete's activities between oldest and newest
// (inclusive calendar dates).
func (c *Client) Activities(ctx context.Context, oldest, newest time.Time) ([]Activity, error) {
	q := url.Values{}
	q.Set("oldest", oldest.Format("2006-01-02"))
	q.Set("newest", newest.Format("2006-01-02"))

	resp, err := c.get(ctx, "/athlete/"+url.PathEscape(c.athleteID)+"/activities", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []Activity
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}
	return out, nil
}

// RecentActivities lists activities from days ago up to today.
func (c *Client) RecentActivities(ctx context.Context, days int) ([]Activity, error) {
	today := c.clock.Now()
	return c.Activities(ctx, today.AddDate(0, 0, -days), today)
}

// DownloadFIT streams the activity's original FIT file into w.
func (c *Client) DownloadFIT(ctx context.Context, activityID string, w io.Writer) error {
	resp, err := c.get(ctx, "/activity/"+url.PathEscape(activityID)+"/fit-file", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("download activity %s: %w", activityID, err)
	}
	return nil
}

// SyncResult summarises one sync pass.
type SyncResult struct {
	Downloaded []string // CSV paths written this pass
	Skipped    int
	Failed     int
}

// NewData reports whether the pass produced any new telemetry.
func (r SyncResult) NewData() bool { return len(r.Downloaded) > 0 }

// Sync downloads every ride from the last days that is not yet in dir and
// converts it to CSV. Per-activity failures are logged and counted; only a
// failure to list activities is returned.
func Sync(ctx context.Context, c *Client, fsys fsutil.FileSystem, dir string, days int) (SyncResult, error) {
	var res SyncResult
	activities, err := c.RecentActivities(ctx, days)
	if err != nil {
		return res, fmt.Errorf("list recent activities: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("create telemetry folder: %w", err)
	}

	for _, a := range activities {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !a.IsRide() {
			continue
		}
		stem, err := a.FileStem()
		if err != nil {
			monitoring.Warnf("skipping activity: %v", err)
			res.Failed++
			continue
		}
		fitPath := filepath.Join(dir, stem+".fit")
		csvPath := filepath.Join(dir, stem+".csv")
		if fsys.Exists(fitPath) {
			res.Skipped++
			continue
		}
		if err := fetchActivity(ctx, c, fsys, a.ID, fitPath, csvPath); err != nil {
			monitoring.Warnf("activity %s: %v", a.ID, err)
			res.Failed++
			continue
		}
		monitoring.Logf("downloaded activity %s to %s", a.ID, csvPath)
		res.Downloaded = append(res.Downloaded, csvPath)
	}
	return res, nil
}

func fetchActivity(ctx context.Context, c *Client, fsys fsutil.FileSystem, id, fitPath, csvPath string) error {
	out, err := fsys.Create(fitPath)
	if err != nil {
		return fmt.Errorf("create fit file: %w", err)
	}
	if err := c.DownloadFIT(ctx, id, out); err != nil {
		out.Close()
		_ = fsys.Remove(fitPath)
		return err
	}
	if err := out.Close(); err != nil {
		_ = fsys.Remove(fitPath)
		return fmt.Errorf("close fit file: %w", err)
	}
	if err := convertFile(fsys, fitPath, csvPath); err != nil {
		// Leave nothing behind so the next sync retries the activity.
		_ = fsys.Remove(csvPath)
		_ = fsys.Remove(fitPath)
		return err
	}
	return nil
}

func convertFile(fsys fsutil.FileSystem, fitPath, csvPath string) (err error) {
	in, err := fsys.Open(fitPath)
	if err != nil {
		return fmt.Errorf("reopen fit file: %w", err)
	}
	defer in.Close()
	dst, err := fsys.Create(csvPath)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer func() {
		if cerr := dst.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close csv: %w", cerr)
		}
	}()
	_, err = ConvertFIT(in, dst)
	return err
}

// ErrNoActivity is returned by ConvertFIT when the file is not an activity.
var ErrNoActivity = errors.New("fit file holds no activity")
