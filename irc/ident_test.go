package irc_test

import (
	"testing"

	"github.com/presbrey/ircgate/irc"
	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"ala", true},
		{"Guru_2", true},
		{"", false},
		{"#ala", false},
		{"&ala", false},
		{"a.la", false},
		{"a,la", false},
		{"aL:a", false},
	}

	for _, tt := range tests {
		err := irc.ValidateUsername(tt.name)
		if tt.valid {
			assert.NoError(t, err, "username %q", tt.name)
		} else {
			assert.Error(t, err, "username %q", tt.name)
		}
	}
}

func TestValidateUsernameReasons(t *testing.T) {
	assert.EqualError(t, irc.ValidateUsername("#ala"), "Username must not have channel prefix.")
	assert.EqualError(t, irc.ValidateUsername("jer:ry"), "Username must not contain '.', ',' or ':'.")

	var verr *irc.ValidationError
	assert.ErrorAs(t, irc.ValidateUsername(""), &verr)
}

func TestValidateChannel(t *testing.T) {
	valid := []string{"#ala", "&ala", "#", "#ala.com"}
	invalid := []string{"", "ala", "&al:a", "&al,a", "#al:a", "#al,a", "@#ala"}

	for _, s := range valid {
		assert.NoError(t, irc.ValidateChannel(s), "channel %q", s)
	}
	for _, s := range invalid {
		assert.Error(t, irc.ValidateChannel(s), "channel %q", s)
	}
}

func TestValidateServer(t *testing.T) {
	assert.NoError(t, irc.ValidateServer("somebody.org"))
	assert.Error(t, irc.ValidateServer("somebodyorg"))
	assert.Error(t, irc.ValidateServer(""))
}

func TestValidateServerMask(t *testing.T) {
	assert.NoError(t, irc.ValidateServerMask("somebody.org"))
	assert.NoError(t, irc.ValidateServerMask("*org"))
	assert.Error(t, irc.ValidateServerMask("somebodyorg"))
}

func TestValidatePrefixedChannel(t *testing.T) {
	tests := []struct {
		channel string
		valid   bool
	}{
		{"#ala", true},
		{"&ala", true},
		{"~#ala", true},
		{"+#ala", true},
		{"%#ala", true},
		{"&#ala", true},
		{"@#ala", true},
		{"~&ala", true},
		{"+&ala", true},
		{"%&ala", true},
		{"&&ala", true},
		{"@&ala", true},
		{"@%#ala", true},
		{"", false},
		{"ala", false},
		{"~ala", false},
		{"&al:a", false},
		{"&al,a", false},
		{"#al:a", false},
		{"#al,a", false},
		{"*#ala", false},
		{"*&ala", false},
		{"#", false},
		{"@#", false},
		{"&", false},
		{"@@", false},
	}

	for _, tt := range tests {
		err := irc.ValidatePrefixedChannel(tt.channel)
		if tt.valid {
			assert.NoError(t, err, "channel %q", tt.channel)
		} else {
			assert.Error(t, err, "channel %q", tt.channel)
		}
	}
}

func TestValidateSource(t *testing.T) {
	valid := []string{"nick", "nick!user@host", "nick!user", "nick@host", "irc.example.com", "n*!*@*.com"}
	invalid := []string{"nick!us:er@host", "nick@host!user", "@!", ":nick"}

	for _, s := range valid {
		assert.NoError(t, irc.ValidateSource(s), "source %q", s)
	}
	for _, s := range invalid {
		assert.Error(t, irc.ValidateSource(s), "source %q", s)
	}
}
