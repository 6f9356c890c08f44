package amigocloud

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Cursor walks a paginated listing. Pages are objects with a "results" array and a
// "next" URL; the cursor follows next links until it is empty.
type Cursor struct {
	c     *Client
	first gjson.Result
	items []gjson.Result
	next  string
}

// GetCursor fetches the first page of the listing at path. A response without a
// "results" array is returned by the cursor as a single item.
func (c *Client) GetCursor(ctx context.Context, path string, params map[string]string) (*Cursor, error) {
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	cur := &Cursor{c: c, first: resp.JSON()}
	cur.load(cur.first)
	return cur, nil
}

func (cur *Cursor) load(page gjson.Result) {
	results := page.Get("results")
	if results.IsArray() {
		cur.items = results.Array()
		cur.next = page.Get("next").String()
		return
	}
	if page.Exists() {
		cur.items = []gjson.Result{page}
	} else {
		cur.items = nil
	}
	cur.next = ""
}

// HasNext reports whether Next has another item to return, fetching the next page if
// needed.
func (cur *Cursor) HasNext(ctx context.Context) (bool, error) {
	for len(cur.items) == 0 {
		if cur.next == "" {
			return false, nil
		}
		resp, err := cur.c.Get(ctx, cur.next, nil)
		if err != nil {
			return false, err
		}
		cur.load(resp.JSON())
	}
	return true, nil
}

// Next returns the next item as raw JSON, or ErrCursorDone once the listing is
// exhausted.
func (cur *Cursor) Next(ctx context.Context) (json.RawMessage, error) {
	ok, err := cur.HasNext(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCursorDone
	}
	item := cur.items[0]
	cur.items = cur.items[1:]
	return json.RawMessage(item.Raw), nil
}

// Get returns the value at key (gjson syntax) of the first page.
func (cur *Cursor) Get(key string) gjson.Result {
	return cur.first.Get(key)
}

// Count returns the "count" of the first page, or -1 when the server sent none.
func (cur *Cursor) Count() int64 {
	if v := cur.first.Get("count"); v.Exists() {
		return v.Int()
	}
	return -1
}
