package ledger

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Indexer searches confirmed transactions.
type Indexer interface {
	SearchTransactions(ctx context.Context, q SearchQuery) ([]IndexedTx, error)
	Configured() bool
}

// IndexerClient implements Indexer over the indexer v2 REST API.
type IndexerClient struct {
	http *HTTPClient
}

// IndexerOpts configures an IndexerClient.
type IndexerOpts struct {
	Address string
	Token   string
	Timeout time.Duration
}

const maxIndexerPage = 1000

func NewIndexer(o IndexerOpts) *IndexerClient {
	var endpoints []string
	for _, ep := range strings.Split(o.Address, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	return &IndexerClient{http: NewHTTPWithOpts(Opts{
		Endpoints: endpoints,
		Headers:   map[string]string{indexerTokenHeader: o.Token},
		Timeout:   o.Timeout,
	})}
}

func (c *IndexerClient) Configured() bool { return c != nil && c.http.Configured() }

type searchPage struct {
	Transactions []IndexedTx `json:"transactions"`
	NextToken    string      `json:"next-token"`
}

// SearchTransactions follows next-token pages until q.Limit transactions
// were collected or the indexer runs out.
func (c *IndexerClient) SearchTransactions(ctx context.Context, q SearchQuery) ([]IndexedTx, error) {
	if q.Limit <= 0 {
		q.Limit = maxIndexerPage
	}
	out := make([]IndexedTx, 0, min(q.Limit, maxIndexerPage))
	next := ""
	for len(out) < q.Limit {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(min(q.Limit-len(out), maxIndexerPage)))
		if q.Address != "" {
			params.Set("address", q.Address)
			params.Set("address-role", "sender")
		}
		if q.TxType != "" {
			params.Set("tx-type", q.TxType)
		}
		if next != "" {
			params.Set("next", next)
		}

		var page searchPage
		if err := c.http.getJSON(ctx, indexerSearchPath, params, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Transactions...)
		if page.NextToken == "" || len(page.Transactions) == 0 || page.NextToken == next {
			break
		}
		next = page.NextToken
	}
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Healthy calls the indexer health endpoint.
func (c *IndexerClient) Healthy(ctx context.Context) error {
	return c.http.getJSON(ctx, indexerHealthPath, nil, nil)
}
