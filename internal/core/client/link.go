package client

import (
	"net/url"
	"strings"
)

// Links holds the pagination targets of a Link header.
type Links struct {
	Next string
	Prev string
}

// Page is one page of a paginated collection.
type Page[T any] struct {
	Items []T
	Links Links
}

// NextParams returns the query of the next link as request params, or nil
// at the end of the collection.
func (p *Page[T]) NextParams() map[string]any {
	if p == nil {
		return nil
	}
	return linkParams(p.Links.Next)
}

// PrevParams returns the query of the prev link as request params.
func (p *Page[T]) PrevParams() map[string]any {
	if p == nil {
		return nil
	}
	return linkParams(p.Links.Prev)
}

// PageParams are the standard cursor parameters.
type PageParams struct {
	MaxID   string
	SinceID string
	MinID   string
	Limit   int
}

func (p PageParams) params() map[string]any {
	params := map[string]any{}
	if p.MaxID != "" {
		params["max_id"] = p.MaxID
	}
	if p.SinceID != "" {
		params["since_id"] = p.SinceID
	}
	if p.MinID != "" {
		params["min_id"] = p.MinID
	}
	if p.Limit > 0 {
		params["limit"] = p.Limit
	}
	return params
}

// ParseLinks parses `<url>; rel="next", <url>; rel="prev"`.
func ParseLinks(header string) Links {
	var links Links
	for _, part := range strings.Split(header, ",") {
		sections := strings.Split(part, ";")
		if len(sections) < 2 {
			continue
		}
		target := strings.TrimSpace(sections[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		target = target[1 : len(target)-1]

		for _, attr := range sections[1:] {
			name, value, ok := strings.Cut(strings.TrimSpace(attr), "=")
			if !ok || strings.TrimSpace(name) != "rel" {
				continue
			}
			switch strings.Trim(strings.TrimSpace(value), `"`) {
			case "next":
				links.Next = target
			case "prev", "previous":
				links.Prev = target
			}
		}
	}
	return links
}

func linkParams(link string) map[string]any {
	if link == "" {
		return nil
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return nil
	}
	params := map[string]any{}
	for key, values := range parsed.Query() {
		if len(values) == 1 {
			params[key] = values[0]
			continue
		}
		params[strings.TrimSuffix(key, "[]")] = values
	}
	return params
}
