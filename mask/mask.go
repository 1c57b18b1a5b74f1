// Package mask matches IRC hostmasks (nick!user@host) against glob patterns
// as used by ban, exception and invite lists, and brings partial masks into
// their canonical three-part shape.
package mask

import (
	"fmt"
	"strings"
)

// Match reports whether subject matches pattern. In the pattern '?' stands
// for exactly one character and '*' for any run of characters, including
// none. Every other character matches itself.
func Match(pattern, subject string) bool {
	s := []rune(subject)
	segments := strings.Split(pattern, "*")
	if len(segments) == 1 {
		p := []rune(pattern)
		return len(p) == len(s) && segmentEqual(p, s)
	}

	first := []rune(segments[0])
	if !hasPrefix(s, first) {
		return false
	}
	s = s[len(first):]

	for _, seg := range segments[1 : len(segments)-1] {
		if seg == "" {
			continue
		}
		p := []rune(seg)
		i := index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}

	// an empty last segment means the pattern ends in '*'
	return hasSuffix(s, []rune(segments[len(segments)-1]))
}

// MatchAny reports whether subject matches any of the patterns.
func MatchAny(patterns []string, subject string) bool {
	for _, p := range patterns {
		if Match(p, subject) {
			return true
		}
	}
	return false
}

// segmentEqual compares two rune slices of equal length, letting '?' in p
// stand for any rune.
func segmentEqual(p, s []rune) bool {
	for i, c := range p {
		if c != '?' && c != s[i] {
			return false
		}
	}
	return true
}

func hasPrefix(s, p []rune) bool {
	return len(p) <= len(s) && segmentEqual(p, s[:len(p)])
}

func hasSuffix(s, p []rune) bool {
	return len(p) <= len(s) && segmentEqual(p, s[len(s)-len(p):])
}

// index returns the leftmost position of p in s, or -1.
func index(s, p []rune) int {
	for i := 0; i+len(p) <= len(s); i++ {
		if segmentEqual(p, s[i:i+len(p)]) {
			return i
		}
	}
	return -1
}

// Normalize completes a partial mask to nick!user@host form, filling the
// missing parts with '*': "bob" becomes "bob!*@*", "*@host" becomes
// "*!*@host" and "bob!u" becomes "bob!u@*".
func Normalize(mask string) string {
	if excl := strings.IndexByte(mask, '!'); excl >= 0 {
		if strings.IndexByte(mask[excl+1:], '@') >= 0 {
			return mask
		}
		return mask + "@*"
	}
	if at := strings.IndexByte(mask, '@'); at >= 0 {
		return mask[:at] + "!*" + mask[at:]
	}
	return mask + "!*@*"
}

// Split breaks a hostmask into its parts. Missing parts are empty.
func Split(hostmask string) (nick, user, host string) {
	nick, rest, ok := strings.Cut(hostmask, "!")
	if !ok {
		return hostmask, "", ""
	}
	user, host, _ = strings.Cut(rest, "@")
	return nick, user, host
}

// Format joins nick, user and host into a hostmask.
func Format(nick, user, host string) string {
	return fmt.Sprintf("%s!%s@%s", nick, user, host)
}
