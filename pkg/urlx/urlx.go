// Package urlx normalises stored photo paths into absolute URLs.
//
// Upstream rows carry paths captured by different clients over the years:
// forward or back slashes, with or without a leading slash, sometimes
// already absolute. Join collapses all of those into one canonical form.
package urlx

import "strings"

// Join composes origin and path with exactly one slash at the seam and
// every separator forward. Absolute http(s) URLs and data URIs pass
// through unchanged, as do empty paths.
func Join(origin, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "data:") {
		return path
	}
	path = strings.ReplaceAll(path, "\\", "/")
	origin = strings.TrimRight(origin, "/")
	return origin + "/" + strings.TrimLeft(path, "/")
}

// JoinAll maps Join over a slice of paths, preserving order. The result is
// never nil so callers can serialise it as an empty JSON array.
func JoinAll(origin string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if joined := Join(origin, p); joined != "" {
			out = append(out, joined)
		}
	}
	return out
}
