package store

import "net/url"

// Canonicalize normalizes a webhook URL for uniqueness comparison: drops
// query and fragment, and strips a single trailing slash from paths longer
// than one character. On parse failure the input is returned unchanged so
// the caller still gets a stable (if unnormalized) key.
func Canonicalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	if len(u.Path) > 1 && u.Path[len(u.Path)-1] == '/' {
		u.Path = u.Path[:len(u.Path)-1]
	}
	return u.Scheme + "://" + u.Host + u.Path
}
