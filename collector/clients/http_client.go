package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

const (
	DefaultTimeout = 60 * time.Second
	// Error bodies are truncated to this many bytes when logged or returned.
	maxErrorBodyBytes = 2048
)

// HttpStatusError is returned for any response with a non-2xx status. The
// body has already been consumed and closed.
type HttpStatusError struct {
	StatusCode int
	Header     http.Header
	Body       string
}

func (e *HttpStatusError) Error() string {
	return fmt.Sprintf("non-2xx http code %d: %s", e.StatusCode, e.Body)
}

type HttpClient struct {
	header  http.Header
	cookies []http.Cookie

	client *http.Client
}

func NewDefaultHttpClient() *HttpClient {
	return NewHttpClient(http.Header{}, []http.Cookie{})
}

func NewHttpClient(header http.Header, cookies []http.Cookie) *HttpClient {
	return &HttpClient{header: header, cookies: cookies, client: &http.Client{Timeout: DefaultTimeout}}
}

// WithTimeout returns a copy of c whose requests time out after d.
func (c *HttpClient) WithTimeout(d time.Duration) *HttpClient {
	return &HttpClient{header: c.header, cookies: c.cookies, client: &http.Client{Timeout: d, Transport: c.client.Transport}}
}

// PostJSON marshals in as the request body, and decodes a 2xx response
// into out.
func (c *HttpClient) PostJSON(ctx context.Context, uri string, header http.Header, in interface{}, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *HttpClient) Get(ctx context.Context, uri string) (*http.Response, error) {
	return c.GetWithQueryParams(ctx, uri, nil)
}

// This method takes in an additional map from query key to query value, which
// will be appended to query uri as ?${KEY}=${VALUE}
func (c *HttpClient) GetWithQueryParams(ctx context.Context, uri string, params map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()
	return c.do(req)
}

func (c *HttpClient) do(req *http.Request) (*http.Response, error) {
	for k, v := range c.header {
		if _, ok := req.Header[k]; !ok {
			req.Header[k] = v
		}
	}
	for i := range c.cookies {
		req.AddCookie(&c.cookies[i])
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if IsNon200HttpResponse(res) {
		return nil, statusError(req.URL, res)
	}
	return res, nil
}

func statusError(u *url.URL, res *http.Response) error {
	defer res.Body.Close()
	body, _ := ioutil.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
	Logger.Log.WithField("host", u.Host).Warnf("non-200 http code: %d", res.StatusCode)
	return &HttpStatusError{StatusCode: res.StatusCode, Header: res.Header, Body: string(body)}
}

func IsNon200HttpResponse(res *http.Response) bool {
	return res.StatusCode < 200 || res.StatusCode >= 300
}
