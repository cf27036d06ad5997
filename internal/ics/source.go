package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	appLog "calclient/internal/log"
)

// maxBody caps a single feed download.
const maxBody = 16 << 20

// Read returns the ICS payload at location, which is either an http(s) URL or
// a local file path. client may be nil.
func Read(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if location == "" {
		return nil, errors.New("ics: empty source")
	}
	if !isRemote(location) {
		return os.ReadFile(location)
	}

	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	appLog.Info("ics fetch start", "url", redactURL(location))
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics: fetch %s: %s", redactURL(location), resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	appLog.Info("ics fetch success", "url", redactURL(location), "bytes", len(body))
	return body, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// redactURL hides path and query of a feed URL for logging; private feeds
// often carry a token in either.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
