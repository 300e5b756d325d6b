// Package textnorm cleans values scraped from rendered pages: HTML stripped
// to plain text, post bodies turned into markdown, display counters such
// as "1.2K" parsed into integers.
package textnorm

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Normalizer holds the sanitizing policies and the markdown converter.
// It is safe for concurrent use.
type Normalizer struct {
	strict *bluemonday.Policy
	ugc    *bluemonday.Policy
	md     *converter.Converter
}

// New builds a Normalizer.
func New() *Normalizer {
	return &Normalizer{
		strict: bluemonday.StrictPolicy(),
		ugc:    bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// PlainText strips markup and collapses whitespace.
func (n *Normalizer) PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(n.strict.Sanitize(s))), " ")
}

// Markdown converts post HTML to markdown after sanitizing it. On failure
// or empty output it returns the plain-text rendering of the input.
func (n *Normalizer) Markdown(htmlBody, sourceURL string) string {
	if strings.TrimSpace(htmlBody) == "" {
		return ""
	}
	clean := n.ugc.Sanitize(htmlBody)
	var opts []converter.ConvertOptionFunc
	if sourceURL != "" {
		opts = append(opts, converter.WithDomain(sourceURL))
	}
	out, err := n.md.ConvertString(clean, opts...)
	if err != nil || strings.TrimSpace(out) == "" {
		return n.PlainText(htmlBody)
	}
	return strings.TrimSpace(out)
}

// FirstLink returns the first http(s) anchor target in htmlBody, resolved
// against base, or "" when there is none.
func FirstLink(htmlBody, base string) string {
	baseURL, _ := url.Parse(base)
	z := xhtml.NewTokenizer(strings.NewReader(htmlBody))
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return ""
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if atom.Lookup(name) != atom.A || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if u := resolve(baseURL, string(val)); u != "" {
						return u
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func resolve(base *url.URL, href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || href == "" {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

var countRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*([km])?\b`)

// ParseCount reads the first display counter in s: "1,234 reactions" is
// 1234, "1.2K" is 1200, "3M" is 3000000. No number yields 0.
func ParseCount(s string) int {
	m := countRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	num, suffix := m[1], strings.ToLower(m[2])
	mult := 1.0
	switch suffix {
	case "k":
		mult = 1e3
	case "m":
		mult = 1e6
	}
	if suffix == "" {
		// Without a suffix, separators group thousands.
		v, err := strconv.Atoi(strings.NewReplacer(",", "", ".", "").Replace(num))
		if err != nil {
			return 0
		}
		return v
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", "."), 64)
	if err != nil {
		return 0
	}
	return int(f*mult + 0.5)
}
