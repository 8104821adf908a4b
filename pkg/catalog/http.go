package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/harborline/quotebuilder/pkg/whttp"
)

// HTTPSource reads a catalog snapshot published as JSON at URL.
type HTTPSource struct {
	URL    string
	Token  string
	client *retryablehttp.Client
}

// NewHTTPSource builds a source whose transport retries up to retries times.
func NewHTTPSource(url, token string, retries int, timeout time.Duration) *HTTPSource {
	return &HTTPSource{URL: url, Token: token, client: whttp.NewClient(retries, timeout)}
}

func (h *HTTPSource) Load(ctx context.Context) (Snapshot, error) {
	var headers []whttp.WHTTPHeader
	if h.Token != "" {
		headers = append(headers, whttp.WHTTPHeader{Name: "Authorization", Value: "Bearer " + h.Token})
	}
	var snap Snapshot
	if err := whttp.GetJSON(ctx, h.client, h.URL, headers, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
