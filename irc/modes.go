package irc

import (
	"strconv"
	"strings"
)

// ModeChange is one flag-string of a MODE command together with the
// arguments that follow it, e.g. {"+ov", ["alice", "bob"]}.
type ModeChange struct {
	Flags string
	Args  []string
}

// ParseModeChanges groups the words after a MODE target into ModeChanges.
// The first word and every word starting with '+' or '-' open a new change;
// any other word is an argument of the change before it.
//
// Grouping looks only at the words, not at the mode letters, so an argument
// that itself starts with a sign is taken as a flag-string: "+k -key" parses
// as {"+k"} and {"-key"}, and validation reports the key as missing.
func ParseModeChanges(params []string) []ModeChange {
	var changes []ModeChange
	for _, p := range params {
		if len(changes) == 0 || strings.HasPrefix(p, "+") || strings.HasPrefix(p, "-") {
			changes = append(changes, ModeChange{Flags: p})
			continue
		}
		last := &changes[len(changes)-1]
		last.Args = append(last.Args, p)
	}
	return changes
}

const userModeLetters = "+-ioOrw"

// ValidateUserModes checks the structure of a user MODE request. User modes
// never take arguments.
func ValidateUserModes(changes []ModeChange) error {
	index := 1
	for _, mc := range changes {
		if mc.Flags == "" {
			return &MissingParameterError{Index: index}
		}
		if strings.IndexFunc(mc.Flags, func(c rune) bool {
			return !strings.ContainsRune(userModeLetters, c)
		}) >= 0 {
			return &UnknownUserModeFlagError{Index: index}
		}
		if len(mc.Args) != 0 {
			return &WrongParameterError{Command: "MODE", Index: index}
		}
		index++
	}
	return nil
}

// ValidateChannelModes checks the structure of a channel MODE request on
// target. Validation stops at the first failure.
func ValidateChannelModes(target string, changes []ModeChange) error {
	index := 1
	for _, mc := range changes {
		if mc.Flags == "" {
			return &MissingParameterError{Index: index}
		}
		// the sign does not carry over into the next flag-string
		adding := false
		args := argQueue{args: mc.Args}
		for _, c := range mc.Flags {
			if err := checkChannelMode(target, c, &adding, &args, index); err != nil {
				return err
			}
		}
		index += args.consumed + 1
	}
	return nil
}

// argQueue hands out the arguments of one ModeChange exactly once.
type argQueue struct {
	args     []string
	consumed int
}

func (q *argQueue) next() (string, bool) {
	if q.consumed >= len(q.args) {
		return "", false
	}
	arg := q.args[q.consumed]
	q.consumed++
	return arg, true
}

func checkChannelMode(target string, c rune, adding *bool, args *argQueue, index int) error {
	invalid := func(param, reason string) error {
		return &InvalidModeParamError{Target: target, Mode: c, Param: param, Reason: reason}
	}

	switch c {
	case '+':
		*adding = true
	case '-':
		*adding = false
	case 'b', 'e', 'I':
		// list modes: a missing mask means "show the list"
		args.next()
	case 'o', 'v', 'h', 'q', 'a':
		arg, ok := args.next()
		if !ok {
			return invalid("", "No argument")
		}
		if err := ValidateUsername(arg); err != nil {
			return invalid(arg, err.Error())
		}
	case 'l':
		if *adding {
			arg, ok := args.next()
			if !ok {
				return invalid("", "No argument")
			}
			// one leading '+' is allowed, as in "+10"
			if _, err := strconv.ParseUint(strings.TrimPrefix(arg, "+"), 10, 64); err != nil {
				return invalid(arg, err.Error())
			}
		} else if arg, ok := args.next(); ok {
			return invalid(arg, "Unexpected argument")
		}
	case 'k':
		if *adding {
			if _, ok := args.next(); !ok {
				return invalid("", "No argument")
			}
		} else if arg, ok := args.next(); ok {
			return invalid(arg, "Unexpected argument")
		}
	case 'i', 'm', 't', 'n', 's':
	default:
		return &UnknownModeError{Index: index, Mode: c, Target: target}
	}
	return nil
}
