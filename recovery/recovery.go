package recovery

import "fmt"

// Strategy decides how a malformed construct found while loading is handled.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Component names the stage of the loader that hit a problem.
type Component string

const (
	ComponentXRef    Component = "xref"
	ComponentParser  Component = "parser"
	ComponentLoader  Component = "loader"
	ComponentScan    Component = "scan"
	ComponentScanner Component = "scanner"
)

// Location identifies where in the file a problem was found. Path records
// the enclosing stages, outermost first ("loader->scanner:literal").
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  Component
	Path       string
}

func (l Location) String() string {
	where := string(l.Component)
	if l.Path != "" {
		where = l.Path
	}
	if l.ObjectNum > 0 {
		return fmt.Sprintf("%s: object %d %d at offset %d", where, l.ObjectNum, l.ObjectGen, l.ByteOffset)
	}
	return fmt.Sprintf("%s: offset %d", where, l.ByteOffset)
}

// Within returns l nested under an inner stage, e.g. a scanner failure
// while the loader was reading an object.
func (l Location) Within(c Component, detail string) Location {
	inner := string(c)
	if detail != "" {
		inner += ":" + detail
	}
	outer := l.Path
	if outer == "" {
		outer = string(l.Component)
	}
	if outer != "" {
		inner = outer + "->" + inner
	}
	l.Component = c
	l.Path = inner
	return l
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	default:
		return "fail"
	}
}
