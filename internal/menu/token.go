// Package menu implements the roster picker as a stateless state machine.
//
// The whole navigation state travels inside the postback payload, so no
// per-user session is kept on the server. A token is encoded as
//
//	<tag>$<year>[$<arg>]
//
// where tag is one letter per State, year is the ROC entry year chosen at
// the start, and arg is the selection that led to the state.
package menu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/garyellow/ntpu-directory-bot/internal/config"
	"github.com/garyellow/ntpu-directory-bot/internal/department"
)

// MaxTokenLength bounds an encoded token to LINE's postback data size.
const MaxTokenLength = config.LINEMaxPostbackDataLength

const separator = "$"

// ErrInvalidToken is returned when a payload is not a well-formed token.
var ErrInvalidToken = errors.New("menu: invalid token")

// State is one step of the picker.
type State uint8

const (
	StateRoot             State = iota + 1 // year chosen, pick a college group
	StateCollegeGroup                      // group chosen, pick a college
	StateCollege                           // college chosen, pick a department
	StateDepartmentChoice                  // family chosen, pick its group
	StateResolved                          // year and department known
)

var stateTags = map[State]string{
	StateRoot:             "r",
	StateCollegeGroup:     "g",
	StateCollege:          "c",
	StateDepartmentChoice: "d",
	StateResolved:         "x",
}

var tagStates = func() map[string]State {
	m := make(map[string]State, len(stateTags))
	for s, tag := range stateTags {
		m[tag] = s
	}
	return m
}()

func (s State) String() string {
	switch s {
	case StateRoot:
		return "ROOT"
	case StateCollegeGroup:
		return "COLLEGE_GROUP"
	case StateCollege:
		return "COLLEGE"
	case StateDepartmentChoice:
		return "DEPARTMENT_CHOICE"
	case StateResolved:
		return "RESOLVED"
	default:
		return "UNKNOWN"
	}
}

// Token is one decoded step.
type Token struct {
	State State
	Year  string
	Arg   string
}

// Start returns the root token for an entry year.
func Start(year int) Token {
	return Token{State: StateRoot, Year: strconv.Itoa(year)}
}

// Resolved returns the (year, department) pair of a terminal token.
func (t Token) Resolved() (int, string, bool) {
	if t.State != StateResolved {
		return 0, "", false
	}
	year, err := strconv.Atoi(t.Year)
	if err != nil {
		return 0, "", false
	}
	return year, t.Arg, true
}

// Encode serialises a token.
func Encode(t Token) string {
	var b strings.Builder
	b.WriteString(stateTags[t.State])
	b.WriteString(separator)
	b.WriteString(t.Year)
	if t.Arg != "" {
		b.WriteString(separator)
		b.WriteString(t.Arg)
	}
	return b.String()
}

// Decode parses and validates a token against the catalog.
func Decode(s string) (Token, error) {
	if s == "" || len(s) > MaxTokenLength {
		return Token{}, fmt.Errorf("%w: length %d", ErrInvalidToken, len(s))
	}

	parts := strings.Split(s, separator)
	if len(parts) < 2 || len(parts) > 3 {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}

	state, ok := tagStates[parts[0]]
	if !ok {
		return Token{}, fmt.Errorf("%w: unknown state %q", ErrInvalidToken, parts[0])
	}
	t := Token{State: state, Year: parts[1]}
	if len(parts) == 3 {
		t.Arg = parts[2]
	}

	if !validYear(t.Year) {
		return Token{}, fmt.Errorf("%w: year %q", ErrInvalidToken, t.Year)
	}
	if !validArg(t) {
		return Token{}, fmt.Errorf("%w: %s arg %q", ErrInvalidToken, t.State, t.Arg)
	}
	return t, nil
}

func validYear(year string) bool {
	if len(year) == 0 || len(year) > 3 {
		return false
	}
	for i := 0; i < len(year); i++ {
		if year[i] < '0' || year[i] > '9' {
			return false
		}
	}
	return true
}

func validArg(t Token) bool {
	switch t.State {
	case StateRoot:
		return t.Arg == ""
	case StateCollegeGroup:
		g, ok := department.FindGroup(t.Arg)
		return ok && g.Key == t.Arg
	case StateCollege:
		c, ok := department.FindCollege(t.Arg)
		return ok && c.Key == t.Arg
	case StateDepartmentChoice:
		return department.IsFamilyBase(t.Arg)
	case StateResolved:
		_, err := department.Resolve(t.Arg)
		return err == nil
	default:
		return false
	}
}
