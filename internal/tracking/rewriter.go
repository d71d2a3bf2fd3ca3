package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rewriter rewrites a message body for engagement tracking: anchors flagged
// with data-track get their destination replaced by a click redirect
// carrying the message's token, and an invisible open beacon is appended.
// The transform is pure and idempotent; calling it twice with the same token
// yields the same body.
type Rewriter struct {
	baseURL string
}

func NewRewriter(baseURL string) *Rewriter {
	return &Rewriter{baseURL: strings.TrimRight(baseURL, "/")}
}

var (
	anchorTag = regexp.MustCompile(`(?is)<a\b[^>]*>`)
	hrefAttr  = regexp.MustCompile(`(?is)href\s*=\s*"([^"]*)"`)
)

// Rewrite returns the body with trackable links redirected and the open
// beacon appended. Anchors without the data-track flag are left untouched.
func (r *Rewriter) Rewrite(body, token string) string {
	clickPrefix := r.baseURL + "/click/"

	out := anchorTag.ReplaceAllStringFunc(body, func(tag string) string {
		if !strings.Contains(strings.ToLower(tag), "data-track") {
			return tag
		}

		return hrefAttr.ReplaceAllStringFunc(tag, func(attr string) string {
			match := hrefAttr.FindStringSubmatch(attr)
			dest := match[1]

			if dest == "" || strings.HasPrefix(dest, clickPrefix) {
				return attr
			}

			return fmt.Sprintf(`href="%s%s?url=%s"`, clickPrefix, token, url.QueryEscape(dest))
		})
	})

	beacon := r.beacon(token)
	if strings.Contains(out, beacon) {
		return out
	}

	return out + beacon
}

func (r *Rewriter) beacon(token string) string {
	return fmt.Sprintf(
		`<img src="%s/track/%s" width="1" height="1" alt="" style="display:none;max-height:1px;max-width:1px;"/>`,
		r.baseURL, token,
	)
}
