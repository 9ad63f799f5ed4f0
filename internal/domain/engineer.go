package domain

import "strings"

// Engineer is one roster entry: a name used for assignment and a chat
// destination for notifications.
type Engineer struct {
	Name   string
	ChatID int64
}

// Roster is the fixed, ordered list of engineers eligible for
// escalation. It is configuration: loaded once at startup, never
// mutated. Order matters — load ties break in roster order.
type Roster []Engineer

// Find looks up an engineer by name, case-insensitively.
func (r Roster) Find(name string) (Engineer, bool) {
	for _, eng := range r {
		if strings.EqualFold(eng.Name, name) {
			return eng, true
		}
	}
	return Engineer{}, false
}

// Names returns roster names in order.
func (r Roster) Names() []string {
	names := make([]string, len(r))
	for i, eng := range r {
		names[i] = eng.Name
	}
	return names
}
