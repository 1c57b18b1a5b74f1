/*
Package irc implements the structural checks an Internet Relay Chat (IRC)
server applies to incoming command parameters before any command runs.

# Identifiers

The identifier validators are pure functions returning nil or a
*ValidationError carrying a human readable reason:

  - ValidateUsername: nicknames and usernames
  - ValidateChannel: "#global" and "&local" channel names
  - ValidateServer and ValidateServerMask: server names and wildcarded masks
  - ValidatePrefixedChannel: channel names with membership prefixes (~ & @ % +)
  - ValidateSource: message prefixes of the form nick!user@host

The same checks are available as go-playground/validator struct tags through
RegisterValidations and NewValidator.

# Modes

ValidateUserModes and ValidateChannelModes walk a MODE request left to right
and report the first structural problem as one of the CommandError types:

  - MissingParameterError
  - UnknownUserModeFlagError
  - UnknownModeError
  - InvalidModeParamError
  - WrongParameterError

Channel modes understood:

  - b, e, I (ban, exception and invite masks; the mask is optional)
  - o, v, h, q, a (membership; a valid nickname is required)
  - l (user limit; a number when set, nothing when unset)
  - k (channel key; required when set, nothing when unset)
  - i, m, t, n, s (flags without arguments)

User modes understood: i, o, O, r, w.

# Usage

	changes := irc.ParseModeChanges(params[1:])
	if err := irc.ValidateChannelModes(params[0], changes); err != nil {
	    var bad *irc.InvalidModeParamError
	    if errors.As(err, &bad) {
	        // reply 696 ERR_INVALIDMODEPARAM
	    }
	}

Formatting the numeric reply is left to the caller; see package ingress.
*/
package irc
