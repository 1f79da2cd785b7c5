package render

import (
	"encoding/json"
	"strings"

	"studio/internal/assets"
)

var (
	nestedKeys = []string{"data", "result", "output"}
	beforeKeys = []string{"beforeImage", "before_image"}
	afterKeys  = []string{"afterImage", "after_image", "result_url", "resultUrl", "output_url"}
	videoKeys  = []string{"video_result_url", "videoResultUrl"}
)

// NormalizedResult is the endpoint response reduced to the fields the studio understands.
// Raw values are keys or URLs exactly as returned, trimmed.
type NormalizedResult struct {
	Success   bool
	BeforeRaw string
	AfterRaw  string
	VideoRaw  string
}

// ResolvedResult carries fetchable URLs for a normalized result.
type ResolvedResult struct {
	Success   bool
	BeforeURL string
	AfterURL  string
	VideoURL  string
}

// Resolve maps the raw values through r.
func (n NormalizedResult) Resolve(r assets.Resolver) ResolvedResult {
	return ResolvedResult{
		Success:   n.Success,
		BeforeURL: r.Resolve(n.BeforeRaw),
		AfterURL:  r.Resolve(n.AfterRaw),
		VideoURL:  r.Resolve(n.VideoRaw),
	}
}

// Normalize accepts result fields at the top level or nested one level under data, result
// or output. Top-level values win. Without an explicit success flag the result is
// successful unless an error field is set. Bodies that are not JSON objects normalize to
// an empty success.
func Normalize(body []byte) NormalizedResult {
	var top map[string]any
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return NormalizedResult{Success: true}
	}
	var nested map[string]any
	for _, k := range nestedKeys {
		if obj, ok := top[k].(map[string]any); ok {
			nested = obj
			break
		}
	}
	layers := []map[string]any{top, nested}
	return NormalizedResult{
		Success:   successOf(layers),
		BeforeRaw: firstString(layers, beforeKeys),
		AfterRaw:  firstString(layers, afterKeys),
		VideoRaw:  firstString(layers, videoKeys),
	}
}

func firstString(layers []map[string]any, keys []string) string {
	for _, layer := range layers {
		for _, k := range keys {
			if s, ok := layer[k].(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func successOf(layers []map[string]any) bool {
	for _, layer := range layers {
		if b, ok := layer["success"].(bool); ok {
			return b
		}
	}
	for _, layer := range layers {
		if errorPresent(layer["error"]) {
			return false
		}
	}
	return true
}

// errorPresent treats any string error, even an empty one, as a failure.
func errorPresent(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	return truthy(v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
