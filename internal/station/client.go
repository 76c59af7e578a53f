package station

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Station is one radio-browser.info directory entry.
type Station struct {
	UUID        string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	URLResolved string `json:"url_resolved"`
	Homepage    string `json:"homepage"`
	Favicon     string `json:"favicon"`
	Tags        string `json:"tags"`
	Country     string `json:"countrycode"`
	Codec       string `json:"codec"`
	Bitrate     int    `json:"bitrate"`
	Votes       int    `json:"votes"`
	ClickCount  int    `json:"clickcount"`
}

// StreamURL returns the playable URL, preferring the resolved one.
func (s Station) StreamURL() string {
	if s.URLResolved != "" {
		return s.URLResolved
	}
	return s.URL
}

// defaultServers are public radio-browser.info mirrors. The client
// rotates through them when one misbehaves.
var defaultServers = []string{
	"https://de1.api.radio-browser.info",
	"https://nl1.api.radio-browser.info",
	"https://at1.api.radio-browser.info",
}

// Client queries the radio-browser.info directory.
type Client struct {
	mu      sync.Mutex
	servers []string
	current int
	http    *http.Client
}

// NewClient creates a directory client over the public mirror pool.
func NewClient() *Client {
	return NewClientWithServers(defaultServers)
}

// NewClientWithServers creates a client over an explicit mirror list.
func NewClientWithServers(servers []string) *Client {
	return &Client{
		servers: servers,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SearchByName finds stations whose name matches the query, most
// popular first.
func (c *Client) SearchByName(ctx context.Context, query string, limit int) ([]Station, error) {
	params := url.Values{
		"name":       {query},
		"limit":      {strconv.Itoa(limit)},
		"order":      {"votes"},
		"reverse":    {"true"},
		"hidebroken": {"true"},
	}
	return c.stations(ctx, "/json/stations/search?"+params.Encode())
}

// SearchByTag finds stations carrying the given tag.
func (c *Client) SearchByTag(ctx context.Context, tag string, limit int) ([]Station, error) {
	params := url.Values{
		"limit":      {strconv.Itoa(limit)},
		"order":      {"votes"},
		"reverse":    {"true"},
		"hidebroken": {"true"},
	}
	return c.stations(ctx, "/json/stations/bytag/"+url.PathEscape(tag)+"?"+params.Encode())
}

// Click reports a station play to the directory, which feeds its
// popularity ranking. Failures are logged and swallowed; playback
// never depends on the directory.
func (c *Client) Click(ctx context.Context, uuid string) {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.get(ctx, "/json/url/"+url.PathEscape(uuid), &resp); err != nil {
		log.Debug().Err(err).Str("uuid", uuid).Msg("station click not recorded")
	}
}

// Vote casts an upvote for a station.
func (c *Client) Vote(ctx context.Context, uuid string) error {
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := c.get(ctx, "/json/vote/"+url.PathEscape(uuid), &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("vote rejected: %s", resp.Message)
	}
	return nil
}

func (c *Client) stations(ctx context.Context, path string) ([]Station, error) {
	var stations []Station
	if err := c.get(ctx, path, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// get tries each mirror in turn, starting from the last known good
// one, and decodes the JSON response. A mirror that errors is skipped
// and the next becomes preferred.
func (c *Client) get(ctx context.Context, path string, out any) error {
	c.mu.Lock()
	start := c.current
	servers := c.servers
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(servers); i++ {
		idx := (start + i) % len(servers)
		base := servers[idx]

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", "tunetap/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.Debug().Err(err).Str("server", base).Msg("directory mirror unreachable")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("%s returned %s", base, resp.Status)
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("decode response from %s: %w", base, err)
			continue
		}

		c.mu.Lock()
		c.current = idx
		c.mu.Unlock()
		return nil
	}
	return fmt.Errorf("all directory mirrors failed: %w", lastErr)
}
