package apifetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"net/url"
	"strconv"
	"strings"

	"github.com/hazyhaar/profilex/fault"
)

// Batch is one page of items.
type Batch struct {
	Page      int
	Items     []json.RawMessage
	RateLimit RateLimit
}

// Pages returns a lazy, finite sequence of batches for path. Iteration
// stops after a batch shorter than pageSize, after a page whose Link header
// lacks rel="next", at MaxPages, or after yielding the first error. When the
// quota is exhausted and more pages are expected, a rate-limit error is
// yielded instead of issuing a request that would be refused.
func (c *Client) Pages(ctx context.Context, path string, params url.Values, pageSize int) iter.Seq2[Batch, error] {
	if pageSize <= 0 {
		pageSize = 30
	}
	return func(yield func(Batch, error) bool) {
		for page := 1; page <= c.cfg.MaxPages; page++ {
			q := url.Values{}
			maps.Copy(q, params)
			q.Set("page", strconv.Itoa(page))
			q.Set("per_page", strconv.Itoa(pageSize))

			resp, err := c.FetchResource(ctx, path, q)
			if err != nil {
				yield(Batch{Page: page}, fmt.Errorf("apifetch: page %d: %w", page, err))
				return
			}
			items, err := walkPath(resp.Body, c.cfg.ResultPath)
			if err != nil {
				yield(Batch{Page: page}, fault.Wrap(err, fault.ErrInvalidResponse, fmt.Sprintf("apifetch: page %d", page)))
				return
			}

			b := Batch{Page: page, Items: items, RateLimit: resp.RateLimit}
			if !yield(b, nil) {
				return
			}
			if len(items) < pageSize || !resp.HasNext() {
				return
			}
			if rl := resp.RateLimit; rl.Exhausted() {
				err := fault.RateLimited(resp.Status, rl.Limit, rl.Remaining, rl.Reset)
				yield(Batch{Page: page + 1, RateLimit: rl}, fmt.Errorf("apifetch: page %d: %w", page+1, err))
				return
			}
		}
		c.cfg.Logger.Warn("apifetch: max pages reached", "path", path, "max_pages", c.cfg.MaxPages)
	}
}

// Paged is the aggregate of a paginated fetch.
type Paged struct {
	Items     []json.RawMessage
	Pages     int
	RateLimit RateLimit
}

// FetchPaginated drains Pages in page order. On error the items gathered
// before it are returned alongside the error.
func (c *Client) FetchPaginated(ctx context.Context, path string, params url.Values, pageSize int) (Paged, error) {
	var out Paged
	for b, err := range c.Pages(ctx, path, params, pageSize) {
		if b.RateLimit.Known {
			out.RateLimit = b.RateLimit
		}
		if err != nil {
			return out, err
		}
		out.Items = append(out.Items, b.Items...)
		out.Pages = b.Page
	}
	return out, nil
}

// walkPath walks a dot-notation path into a JSON body and returns the
// array found there. An empty path means the body itself is the array.
// null is not an array.
func walkPath(body json.RawMessage, path string) ([]json.RawMessage, error) {
	cur := body
	if path != "" {
		for _, part := range strings.Split(path, ".") {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(cur, &obj); err != nil || obj == nil {
				return nil, fmt.Errorf("expected object at %q", part)
			}
			next, ok := obj[part]
			if !ok {
				return nil, fmt.Errorf("key %q not found", part)
			}
			cur = next
		}
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(cur, &arr); err != nil || bytes.Equal(bytes.TrimSpace(cur), []byte("null")) {
		if path == "" {
			return nil, fmt.Errorf("root is not an array")
		}
		return nil, fmt.Errorf("path %q is not an array", path)
	}
	return arr, nil
}
