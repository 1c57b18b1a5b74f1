package irc

import "strings"

var (
	errEmptyUsername      = &ValidationError{Reason: "Username must not be empty."}
	errUsernamePrefix     = &ValidationError{Reason: "Username must not have channel prefix."}
	errUsernameCharacters = &ValidationError{Reason: "Username must not contain '.', ',' or ':'."}
	errChannel            = &ValidationError{Reason: "Channel name must have '#' or '&' at start and must not contain ',' or ':'."}
	errServer             = &ValidationError{Reason: "Server name must contain '.'."}
	errServerMask         = &ValidationError{Reason: "Server mask must contain '.' or '*'."}
	errPrefixedChannel    = &ValidationError{Reason: "Invalid channel name with optional membership prefix."}
	errSourceColon        = &ValidationError{Reason: "Source must not contain ':'."}
	errSourceOrder        = &ValidationError{Reason: "Source must have '!' before '@'."}
)

// ValidateUsername checks a nickname or username as used in NICK, USER and
// the membership channel modes.
func ValidateUsername(s string) error {
	if s == "" {
		return errEmptyUsername
	}
	if s[0] == '#' || s[0] == '&' {
		return errUsernamePrefix
	}
	if strings.ContainsAny(s, ".:,") {
		return errUsernameCharacters
	}
	return nil
}

// ValidateChannel checks a bare channel name.
func ValidateChannel(s string) error {
	if s == "" || strings.ContainsAny(s, ":,") || (s[0] != '#' && s[0] != '&') {
		return errChannel
	}
	return nil
}

// ValidateServer checks a server name.
func ValidateServer(s string) error {
	if !strings.Contains(s, ".") {
		return errServer
	}
	return nil
}

// ValidateServerMask checks a server name that may be wildcarded.
func ValidateServerMask(s string) error {
	if !strings.ContainsAny(s, ".*") {
		return errServerMask
	}
	return nil
}

func isRankPrefix(c byte) bool {
	return c == '~' || c == '@' || c == '%' || c == '+'
}

// ValidatePrefixedChannel checks a channel name that may carry membership
// prefixes, as in "@#ops" or "+&local". A '&' is both a prefix and the local
// channel sigil, so "&&ala" and "&ala" are both accepted.
func ValidatePrefixedChannel(s string) error {
	if s == "" || strings.ContainsAny(s, ":,") {
		return errPrefixedChannel
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isRankPrefix(c) || c == '&' {
			continue
		}
		if c == '#' {
			if i+1 < len(s) {
				return nil
			}
			return errPrefixedChannel
		}
		if i > 0 && s[i-1] == '&' {
			return nil
		}
		return errPrefixedChannel
	}
	return errPrefixedChannel
}

// ValidateSource checks a message source (prefix) of the form nick!user@host.
func ValidateSource(s string) error {
	if strings.Contains(s, ":") {
		return errSourceColon
	}
	excl := strings.IndexByte(s, '!')
	at := strings.IndexByte(s, '@')
	if excl >= 0 && at >= 0 && excl >= at {
		return errSourceOrder
	}
	return nil
}
