package mask

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"", "", true},
		{"", "x", false},
		{"*", "", true},
		{"*", "anything at all", true},
		{"***", "abc", true},
		{"somebody", "somebody", true},
		{"somebody", "somebady", false},
		{"somebody", "somebod", false},
		{"somebody", "somebodyis", false},
		{"s?meb?dy", "samebady", true},
		{"s?mec?dy", "samebady", false},
		{"?", "", false},
		{"?", "x", true},
		{"??", "x", false},
		{"so*body", "somebody", true},
		{"so*body", "sobody", true},
		{"so*body", "sbody", false},
		{"so*body", "somebodyx", false},
		{"so**body", "somebody", true},
		{"some*", "somebody", true},
		{"some*", "some", true},
		{"some*", "som", false},
		{"*body", "somebody", true},
		{"*body", "bodyguard", false},
		{"a*b*c", "abc", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "acb", false},
		{"a*b*c*", "abcabc", true},
		{"*b*", "abc", true},
		{"*b*", "ac", false},
		{"ab*ba", "aba", false},
		{"ab*ba", "abba", true},
		{"la*l?", "lalx", true},
		{"la*l?", "lalalx", true},
		{"la*l?", "lal", false},
		{"la*?a", "laa", false},
		{"la*?a", "laba", true},
		{"la*?a", "lababa", true},
		{"*?", "", false},
		{"*?", "x", true},
		{"n*!*@*.com", "nick!user@host.com", true},
		{"n*!*@*.com", "nick!user@host.org", false},
		{"*!*@*", "nick!user@host", true},
		{"ż?ółw", "żaółw", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(tt.pattern, tt.subject), "Match(%q, %q)", tt.pattern, tt.subject)
	}
}

func TestMatchAny(t *testing.T) {
	bans := []string{"*!*@bad.example", "spam*!*@*"}
	assert.True(t, MatchAny(bans, "joe!u@bad.example"))
	assert.True(t, MatchAny(bans, "spammer!x@good.example"))
	assert.False(t, MatchAny(bans, "joe!u@good.example"))
	assert.False(t, MatchAny(nil, "joe!u@good.example"))
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"*":              "*!*@*",
		"bob.com":        "bob.com!*@*",
		"ax*@*.com":      "ax*!*@*.com",
		"bob!u":          "bob!u@*",
		"bob!":           "bob!@*",
		"bob!u@host":     "bob!u@host",
		"@host":          "!*@host",
		"":               "!*@*",
		"nick!user@host": "nick!user@host",
	}

	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, m := range []string{"a!b@c", "*!*@*", "n?ck!*@*.org"} {
		once := Normalize(m)
		assert.Equal(t, m, once)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestSplitFormat(t *testing.T) {
	nick, user, host := Split("nick!user@host")
	assert.Equal(t, "nick", nick)
	assert.Equal(t, "user", user)
	assert.Equal(t, "host", host)

	nick, user, host = Split("nick")
	assert.Equal(t, "nick", nick)
	assert.Empty(t, user)
	assert.Empty(t, host)

	nick, user, host = Split("nick!user")
	assert.Equal(t, []string{"nick", "user", ""}, []string{nick, user, host})

	assert.Equal(t, "nick!user@host", Format(Split("nick!user@host")))
}
