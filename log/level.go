package log

import "strings"

// Level orders log records by severity. QUIET disables output entirely.
type Level int

const (
	TRACE = Level(iota)
	DEBUG
	INFO
	WARN
	ERROR
	FATAL

	QUIET
)

var levelNames = [...]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
	QUIET: "QUIET",
}

func (l Level) String() string {
	if l < TRACE || l > QUIET {
		return levelNames[QUIET]
	}

	return levelNames[l]
}

// FromString parses a level name case-insensitively. Unknown names map to QUIET.
func FromString(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	for lvl, name := range levelNames {
		if name == s {
			return Level(lvl)
		}
	}

	return QUIET
}
