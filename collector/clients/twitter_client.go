package clients

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lovelive-bluebird/bluebird/model"
	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

const (
	TwitterApiBaseUrl     = "https://api.twitterapi.io"
	TwitterSearchEndpoint = "/twitter/tweet/advanced_search"

	QueryTypeLatest = "Latest"
	QueryTypeTop    = "Top"
)

// SearchResponse is one page of the advanced search endpoint.
type SearchResponse struct {
	Tweets      []model.Tweet `json:"tweets"`
	HasNextPage bool          `json:"has_next_page"`
	NextCursor  string        `json:"next_cursor"`
}

// TwitterClient talks to twitterapi.io, which also delivers our webhooks.
type TwitterClient struct {
	client  *HttpClient
	baseUrl string
}

func NewTwitterClient(apiKey string, baseUrl string) (*TwitterClient, error) {
	if apiKey == "" {
		return nil, errors.New("TWITTER_API_KEY must be set to use the search endpoint")
	}
	if baseUrl == "" {
		baseUrl = TwitterApiBaseUrl
	}
	header := http.Header{}
	header.Set("X-API-Key", apiKey)
	return &TwitterClient{client: NewHttpClient(header, []http.Cookie{}), baseUrl: baseUrl}, nil
}

// SearchTweets fetches one page of results. Pass the previous page's
// NextCursor to continue.
func (t *TwitterClient) SearchTweets(ctx context.Context, query, queryType, cursor string) (*SearchResponse, error) {
	if queryType == "" {
		queryType = QueryTypeLatest
	}
	params := map[string]string{"query": query, "queryType": queryType}
	if cursor != "" {
		params["cursor"] = cursor
	}

	res, err := t.client.GetWithQueryParams(ctx, t.baseUrl+TwitterSearchEndpoint, params)
	if err != nil {
		return nil, errors.Wrap(err, "twitter search")
	}
	defer res.Body.Close()

	page := &SearchResponse{}
	if err := json.NewDecoder(res.Body).Decode(page); err != nil {
		return nil, errors.Wrap(err, "decode twitter search response")
	}
	Logger.Log.WithFields(logrus.Fields{
		"query":         query,
		"tweets":        len(page.Tweets),
		"has_next_page": page.HasNextPage,
	}).Info("twitter search page fetched")
	return page, nil
}

// SearchAll follows cursors until limit tweets were collected or the results
// run out. limit <= 0 means no limit.
func (t *TwitterClient) SearchAll(ctx context.Context, query, queryType string, limit int) ([]model.Tweet, error) {
	return t.SearchFrom(ctx, query, queryType, "", limit)
}

// SearchFrom is SearchAll starting at cursor.
func (t *TwitterClient) SearchFrom(ctx context.Context, query, queryType, cursor string, limit int) ([]model.Tweet, error) {
	res := []model.Tweet{}
	for {
		page, err := t.SearchTweets(ctx, query, queryType, cursor)
		if err != nil {
			return res, err
		}
		res = append(res, page.Tweets...)
		if limit > 0 && len(res) >= limit {
			return res[:limit], nil
		}
		if !page.HasNextPage || page.NextCursor == "" || len(page.Tweets) == 0 {
			return res, nil
		}
		cursor = page.NextCursor
	}
}
