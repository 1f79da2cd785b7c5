// Package assets turns asset store rows and storage keys into fetchable URLs.
package assets

import (
	"net/url"
	"strings"
	"time"

	"studio/internal/domain"
)

// Resolver prefixes storage keys with the media gateway base URL. AllowedHosts lists the
// extra hosts whose absolute URLs are accepted as source images.
type Resolver struct {
	BaseURL      string
	AllowedHosts []string
}

// NewResolver trims the trailing slash of base.
func NewResolver(base string, allowedHosts ...string) Resolver {
	r := Resolver{BaseURL: strings.TrimRight(strings.TrimSpace(base), "/")}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.AllowedHosts = append(r.AllowedHosts, h)
		}
	}
	return r
}

// Trusted reports whether the resolved form of raw may be fetched by the server: it must
// live under the media gateway or on an allowed host.
func (r Resolver) Trusted(raw string) bool {
	v := r.Resolve(raw)
	if v == "" {
		return false
	}
	if r.BaseURL != "" && strings.HasPrefix(v, r.BaseURL+"/") {
		return true
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.User != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, h := range r.AllowedHosts {
		if host == h || strings.ToLower(u.Hostname()) == h {
			return true
		}
	}
	return false
}

// Resolve returns "" for empty or placeholder values, keeps absolute URLs and prefixes keys.
func (r Resolver) Resolve(raw string) string {
	v := strings.TrimSpace(raw)
	switch v {
	case "", "null", "undefined":
		return ""
	}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return v
	}
	if r.BaseURL == "" {
		return v
	}
	return r.BaseURL + "/" + strings.TrimLeft(v, "/")
}

// Latest is the newest before, after and video candidates of a project.
type Latest struct {
	BeforeKey string
	AfterKey  string
	VideoKey  string
	BeforeURL string
	AfterURL  string
	VideoURL  string
}

// Ready reports whether the candidates contain a result for mode.
func (l *Latest) Ready(mode domain.Mode) bool {
	if l == nil {
		return false
	}
	if mode == domain.ModeVideo {
		return l.VideoURL != ""
	}
	return l.AfterURL != ""
}

// Select picks the candidates from rows ordered newest first.
func Select(rows []domain.AssetRecord, r Resolver) *Latest {
	return SelectSince(rows, r, "", time.Time{})
}

// SelectSince is Select for a job of mode started at since: result rows of that mode
// created before since belong to earlier jobs and are skipped. A zero since keeps every row.
func SelectSince(rows []domain.AssetRecord, r Resolver, mode domain.Mode, since time.Time) *Latest {
	stale := func(row domain.AssetRecord, m domain.Mode) bool {
		return mode == m && !since.IsZero() && row.CreatedAt.Before(since)
	}
	out := &Latest{}
	var haveBefore, haveAfter, haveVideo bool
	for _, row := range rows {
		if !haveBefore && row.Role == domain.AssetRoleSource {
			out.BeforeKey, haveBefore = row.URL, true
		}
		if !haveAfter && row.Role == domain.AssetRoleResult && row.Type != domain.AssetTypeVideo && !stale(row, domain.ModePhoto) {
			out.AfterKey, haveAfter = row.URL, true
		}
		if !haveVideo && row.IsVideo() && !stale(row, domain.ModeVideo) {
			out.VideoKey, haveVideo = row.URL, true
		}
	}
	out.BeforeURL = r.Resolve(out.BeforeKey)
	out.AfterURL = r.Resolve(out.AfterKey)
	out.VideoURL = r.Resolve(out.VideoKey)
	return out
}
