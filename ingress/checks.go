package ingress

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lrstanley/girc"
	"github.com/presbrey/ircgate/irc"
)

// Numerics without a girc constant.
const (
	errUnknownError     = "400"
	rplStartTLS         = "670"
	errStartTLS         = "691"
	errInvalidModeParam = "696"
)

// rejection is a failed structural check on a command other than MODE.
type rejection struct {
	numeric string
	params  []string
}

func (r *rejection) Error() string {
	return r.numeric + " " + strings.Join(r.params, " ")
}

func needMoreParams(command string) *rejection {
	return &rejection{numeric: girc.ERR_NEEDMOREPARAMS, params: []string{command, "Not enough parameters"}}
}

type nickParams struct {
	Nick string `validate:"ircnick"`
}

type channelParams struct {
	Channels []string `validate:"dive,ircchannel"`
}

type targetParams struct {
	Targets []string `validate:"dive,ircprefixedchannel|ircnick"`
}

// checkFunc validates the parameters of one command.
type checkFunc func(v *validator.Validate, e *girc.Event) error

var checks = map[string]checkFunc{
	girc.MODE:    checkMode,
	girc.NICK:    checkNick,
	girc.JOIN:    checkJoin,
	girc.PART:    checkPart,
	girc.PRIVMSG: checkMessage,
	girc.NOTICE:  checkMessage,
	girc.PING:    checkPing,
	girc.PONG:    checkPing,
}

// checkCommand runs the structural checks registered for e.Command.
// Commands without checks pass.
func checkCommand(v *validator.Validate, e *girc.Event) error {
	check, ok := checks[e.Command]
	if !ok {
		return nil
	}
	return check(v, e)
}

func isChannelName(s string) bool {
	return s != "" && (s[0] == '#' || s[0] == '&')
}

func checkMode(_ *validator.Validate, e *girc.Event) error {
	if len(e.Params) == 0 {
		return needMoreParams(e.Command)
	}
	target := e.Params[0]
	changes := irc.ParseModeChanges(e.Params[1:])

	if isChannelName(target) {
		if err := irc.ValidateChannel(target); err != nil {
			return &rejection{numeric: girc.ERR_NOSUCHCHANNEL, params: []string{target, "No such channel"}}
		}
		return irc.ValidateChannelModes(target, changes)
	}
	if err := irc.ValidateUsername(target); err != nil {
		return &rejection{numeric: girc.ERR_NOSUCHNICK, params: []string{target, "No such nick/channel"}}
	}
	return irc.ValidateUserModes(changes)
}

func checkNick(v *validator.Validate, e *girc.Event) error {
	if len(e.Params) == 0 || e.Params[0] == "" {
		return &rejection{numeric: girc.ERR_NONICKNAMEGIVEN, params: []string{"No nickname given"}}
	}
	if err := v.Struct(nickParams{Nick: e.Params[0]}); err != nil {
		return &rejection{numeric: girc.ERR_ERRONEUSNICKNAME, params: []string{e.Params[0], reason(err)}}
	}
	return nil
}

func checkJoin(v *validator.Validate, e *girc.Event) error {
	if len(e.Params) == 0 {
		return needMoreParams(e.Command)
	}
	// JOIN 0 leaves every channel
	if e.Params[0] == "0" {
		return nil
	}
	return checkChannels(v, e.Params[0])
}

func checkPart(v *validator.Validate, e *girc.Event) error {
	if len(e.Params) == 0 {
		return needMoreParams(e.Command)
	}
	return checkChannels(v, e.Params[0])
}

func checkChannels(v *validator.Validate, list string) error {
	if err := v.Struct(channelParams{Channels: strings.Split(list, ",")}); err != nil {
		return &rejection{numeric: girc.ERR_NOSUCHCHANNEL, params: []string{failedValue(err, list), "No such channel"}}
	}
	return nil
}

func checkMessage(v *validator.Validate, e *girc.Event) error {
	if len(e.Params) == 0 {
		return &rejection{numeric: girc.ERR_NORECIPIENT, params: []string{"No recipient given (" + e.Command + ")"}}
	}
	if len(e.Params) == 1 {
		return &rejection{numeric: girc.ERR_NOTEXTTOSEND, params: []string{"No text to send"}}
	}
	list := e.Params[0]
	if err := v.Struct(targetParams{Targets: strings.Split(list, ",")}); err != nil {
		return &rejection{numeric: girc.ERR_NOSUCHNICK, params: []string{failedValue(err, list), "No such nick/channel"}}
	}
	return nil
}

func checkPing(_ *validator.Validate, e *girc.Event) error {
	if len(e.Params) == 0 || e.Params[0] == "" {
		return &rejection{numeric: girc.ERR_NOORIGIN, params: []string{"No origin specified"}}
	}
	return nil
}

// failedValue returns the first value rejected by the validator, or
// fallback when it cannot be determined.
func failedValue(err error, fallback string) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if s, ok := verrs[0].Value().(string); ok {
			return s
		}
	}
	return fallback
}

func reason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return irc.Reason(verrs[0])
	}
	return err.Error()
}

// reply converts a failed check into a numeric and its parameters, without
// the leading client target.
func reply(command string, err error) (string, []string) {
	var (
		rej     *rejection
		missing *irc.MissingParameterError
		uflag   *irc.UnknownUserModeFlagError
		unknown *irc.UnknownModeError
		invalid *irc.InvalidModeParamError
		wrong   *irc.WrongParameterError
	)
	switch {
	case errors.As(err, &rej):
		return rej.numeric, rej.params
	case errors.As(err, &missing):
		return girc.ERR_NEEDMOREPARAMS, []string{command, "Not enough parameters"}
	case errors.As(err, &uflag):
		return girc.ERR_UMODEUNKNOWNFLAG, []string{"Unknown MODE flag"}
	case errors.As(err, &unknown):
		return girc.ERR_UNKNOWNMODE, []string{string(unknown.Mode), "is unknown mode char to me for " + unknown.Target}
	case errors.As(err, &invalid):
		param := invalid.Param
		if param == "" {
			param = "*"
		}
		return errInvalidModeParam, []string{invalid.Target, string(invalid.Mode), param, invalid.Reason}
	case errors.As(err, &wrong):
		return errUnknownError, []string{wrong.Command, err.Error()}
	}
	return errUnknownError, []string{command, err.Error()}
}

// kind names a failed check for the validation failure metric.
func kind(err error) string {
	switch err.(type) {
	case *irc.MissingParameterError:
		return "missing_parameter"
	case *irc.UnknownUserModeFlagError:
		return "unknown_umode_flag"
	case *irc.UnknownModeError:
		return "unknown_mode"
	case *irc.InvalidModeParamError:
		return "invalid_mode_param"
	case *irc.WrongParameterError:
		return "wrong_parameter"
	case *rejection:
		return "invalid_parameter"
	}
	return "other"
}
