package menu

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/garyellow/ntpu-directory-bot/internal/department"
)

// ErrUnknownSelection is returned when a selection is not one of the
// current state's branches. Callers treat the input as free text.
var ErrUnknownSelection = errors.New("menu: unknown selection")

// Choice is one branch offered by a non-terminal state.
type Choice struct {
	Key   string // selection accepted by Transition
	Label string // display name
	Next  Token
}

// Transition applies a selection to the current token. A selection may be
// a branch key ("pse", "eecs", "85") or its display name ("公社電資",
// "電機資訊學院", "資工"). The year is carried over unchanged.
func Transition(cur Token, selection string) (Token, error) {
	next := Token{Year: cur.Year}

	switch cur.State {
	case StateRoot:
		g, ok := department.FindGroup(selection)
		if !ok {
			return Token{}, unknown(cur, selection)
		}
		next.State, next.Arg = StateCollegeGroup, g.Key

	case StateCollegeGroup:
		g, ok := department.FindGroup(cur.Arg)
		if !ok {
			return Token{}, unknown(cur, selection)
		}
		c, ok := department.FindCollege(selection)
		if !ok || !slices.ContainsFunc(g.Colleges, func(gc department.College) bool { return gc.Key == c.Key }) {
			return Token{}, unknown(cur, selection)
		}
		next.State, next.Arg = StateCollege, c.Key

	case StateCollege:
		c, ok := department.FindCollege(cur.Arg)
		if !ok {
			return Token{}, unknown(cur, selection)
		}
		code, ok := selectionCode(selection)
		if !ok {
			return Token{}, unknown(cur, selection)
		}
		switch {
		case slices.Contains(c.Departments, code) && department.IsFamilyBase(code):
			next.State, next.Arg = StateDepartmentChoice, code
		case slices.Contains(c.Departments, code):
			next.State, next.Arg = StateResolved, code
		case inFamilyOf(code, c.Departments):
			// A group picked straight from the college skips the family step.
			next.State, next.Arg = StateResolved, code
		default:
			return Token{}, unknown(cur, selection)
		}

	case StateDepartmentChoice:
		base, suffixes, ok := department.ResolveFamily(cur.Arg)
		if !ok {
			return Token{}, unknown(cur, selection)
		}
		code := selection
		if slices.Contains(suffixes, selection) {
			code = base + selection
		} else if c, ok := selectionCode(selection); ok {
			code = c
		}
		if !isMember(code, base, suffixes) {
			return Token{}, unknown(cur, selection)
		}
		next.State, next.Arg = StateResolved, code

	default:
		return Token{}, unknown(cur, selection)
	}

	return next, nil
}

// Choices lists the branches of a non-terminal state in display order.
// A resolved token has none.
func Choices(t Token) []Choice {
	var choices []Choice
	add := func(key, label string) {
		next, err := Transition(t, key)
		if err == nil {
			choices = append(choices, Choice{Key: key, Label: label, Next: next})
		}
	}

	switch t.State {
	case StateRoot:
		for _, g := range department.Groups {
			add(g.Key, g.Name)
		}
	case StateCollegeGroup:
		if g, ok := department.FindGroup(t.Arg); ok {
			for _, c := range g.Colleges {
				add(c.Key, c.Name)
			}
		}
	case StateCollege:
		if c, ok := department.FindCollege(t.Arg); ok {
			for _, code := range c.Departments {
				name, _ := department.Name(code)
				add(code, name)
			}
		}
	case StateDepartmentChoice:
		if _, suffixes, ok := department.ResolveFamily(t.Arg); ok {
			for _, s := range suffixes {
				code := t.Arg + s
				name, _ := department.Name(code)
				add(code, name)
			}
		}
	}
	return choices
}

// selectionCode maps a department selection (code or name) to its code.
func selectionCode(selection string) (string, bool) {
	if _, err := department.Resolve(selection); err == nil || department.IsFamilyBase(selection) {
		return selection, true
	}
	return department.CodeOf(selection)
}

func isMember(code, base string, suffixes []string) bool {
	return len(code) == len(base)+1 && strings.HasPrefix(code, base) && slices.Contains(suffixes, code[len(base):])
}

func inFamilyOf(code string, depts []string) bool {
	base, _, ok := department.ResolveFamily(code)
	return ok && base != code && slices.Contains(depts, base)
}

func unknown(cur Token, selection string) error {
	return fmt.Errorf("%w: %q at %s", ErrUnknownSelection, selection, cur.State)
}
