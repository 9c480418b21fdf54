package store

import "testing"

func TestCanonicalizeIsIdempotent(t *testing.T) {
	cases := []string{
		"https://discord.com/api/webhooks/123/token?wait=true",
		"https://discord.com/api/webhooks/123/token/",
		"https://discord.com/api/webhooks/123/token#frag",
		"https://discord.com/",
		"not a url at all",
	}
	for _, c := range cases {
		once := Canonicalize(c)
		twice := Canonicalize(once)
		if once != twice {
			t.Fatalf("Canonicalize not idempotent for %q: %q vs %q", c, once, twice)
		}
	}
}

func TestCanonicalizeDropsQueryAndTrailingSlash(t *testing.T) {
	got := Canonicalize("https://discord.com/api/webhooks/123/token/?wait=true#x")
	want := "https://discord.com/api/webhooks/123/token"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeKeepsRootSlash(t *testing.T) {
	got := Canonicalize("https://discord.com/")
	if got != "https://discord.com/" {
		t.Fatalf("root path slash should be preserved, got %q", got)
	}
}
