package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://teaching.applysquare.com"

// Client talks to the course attachment API on behalf of a logged-in user.
type Client struct {
	http    *http.Client
	baseURL string
	session Session
}

var _ Source = (*Client)(nil)

// New creates a Client. baseURL has no trailing slash, e.g. DefaultBaseURL.
func New(client *http.Client, baseURL string, session Session) *Client {
	return &Client{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
	}
}

// Session returns the session the client was created with.
func (c *Client) Session() Session {
	return c.session
}

// endpoint builds "<base>/Api/<path>/token/<token>?<query>".
func (c *Client) endpoint(path string, query url.Values) string {
	return fmt.Sprintf("%s/Api/%s/token/%s?%s", c.baseURL, path, url.PathEscape(c.session.Token), query.Encode())
}

// ListPage fetches one page of the children of parentID. total is the number
// of children across all pages; the page size is chosen by the server.
func (c *Client) ListPage(ctx context.Context, cid, parentID string, page int) (int, []Entry, error) {
	u := c.endpoint("CourseAttachment/getList", url.Values{
		"parent_id": {parentID},
		"page":      {strconv.Itoa(page)},
		"plan_id":   {"-1"},
		"uid":       {c.session.UID},
		"cid":       {cid},
	})

	op := fmt.Sprintf("listing %s page %d", parentID, page)
	msg, err := fetch[listingMessage](ctx, c, op, u)
	if err != nil {
		return 0, nil, err
	}
	return msg.Count, msg.List, nil
}

// ListAll fetches pages 1..N of parentID sequentially until the number of
// collected entries reaches the declared total.
func (c *Client) ListAll(ctx context.Context, cid, parentID string) ([]Entry, error) {
	total, entries, err := c.ListPage(ctx, cid, parentID, 1)
	if err != nil {
		return nil, err
	}

	for page := 2; len(entries) < total; page++ {
		_, more, err := c.ListPage(ctx, cid, parentID, page)
		if err != nil {
			return nil, err
		}
		// An empty page before the total is reached would otherwise loop forever.
		if len(more) == 0 {
			return nil, &Error{
				Op:   fmt.Sprintf("listing %s page %d", parentID, page),
				Kind: Decode,
				Err:  fmt.Errorf("empty page after %d of %d entries", len(entries), total),
			}
		}
		entries = append(entries, more...)
	}

	return entries, nil
}

// Detail resolves the download URL of an entry that is not directly downloadable.
func (c *Client) Detail(ctx context.Context, cid, id string) (string, error) {
	u := c.endpoint("CourseAttachment/ajaxGetInfo", url.Values{
		"id":  {id},
		"uid": {c.session.UID},
		"cid": {cid},
	})

	msg, err := fetch[detailMessage](ctx, c, "detail "+id, u)
	if err != nil {
		return "", err
	}
	if msg.Path == "" {
		return "", &Error{Op: "detail " + id, Kind: Decode, Err: fmt.Errorf("response has no path")}
	}
	return msg.Path, nil
}

// Courses returns the user's course catalog.
func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	u := c.endpoint("Public/getIndexCourseList", url.Values{
		"type":     {"1"},
		"usertype": {"1"},
		"uid":      {c.session.UID},
	})
	return fetch[[]Course](ctx, c, "listing courses", u)
}

// Open starts downloading rawURL. Relative URLs are resolved against the base URL.
func (c *Client) Open(ctx context.Context, rawURL string) (*Stream, error) {
	u, err := c.resolve(rawURL)
	if err != nil {
		return nil, &Error{Op: "download", Kind: Decode, Err: err}
	}

	resp, err := c.get(ctx, "download "+u, u)
	if err != nil {
		return nil, err
	}
	return &Stream{Body: resp.Body, ContentLength: resp.ContentLength}, nil
}

func (c *Client) resolve(rawURL string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing download URL %q: %w", rawURL, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// get issues a GET and returns the response if the status is 2xx.
// The caller owns the body.
func (c *Client) get(ctx context.Context, op, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Op: op, Kind: Network, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Kind: Network, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &Error{Op: op, Kind: Network, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	return resp, nil
}

// fetch GETs u and decodes the message payload of the JSON body as T.
func fetch[T any](ctx context.Context, c *Client, op, u string) (T, error) {
	resp, err := c.get(ctx, op, u)
	if err != nil {
		var zero T
		return zero, err
	}
	defer resp.Body.Close()

	return DecodeMessage[T](op, resp.Body)
}
