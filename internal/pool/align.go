package pool

import (
	"fmt"
	"sort"
	"strings"
)

// Misalignment describes how a chunk's output IDs diverge from its
// input IDs.
type Misalignment struct {
	Missing   []string
	Extra     []string
	Duplicate []string
}

// CheckAlignment compares the output ID multiset against the input set.
// It returns nil when they match exactly.
func CheckAlignment(want, got []string) *Misalignment {
	wanted := make(map[string]bool, len(want))
	for _, id := range want {
		wanted[id] = true
	}

	seen := make(map[string]int, len(got))
	var mis Misalignment
	for _, id := range got {
		seen[id]++
		if seen[id] == 2 {
			mis.Duplicate = append(mis.Duplicate, id)
		}
		if !wanted[id] && seen[id] == 1 {
			mis.Extra = append(mis.Extra, id)
		}
	}
	for _, id := range want {
		if seen[id] == 0 {
			mis.Missing = append(mis.Missing, id)
		}
	}
	if len(mis.Missing) == 0 && len(mis.Extra) == 0 && len(mis.Duplicate) == 0 {
		return nil
	}
	sort.Strings(mis.Missing)
	sort.Strings(mis.Extra)
	sort.Strings(mis.Duplicate)
	return &mis
}

func (m *Misalignment) Error() string {
	return "output ids do not match input ids: " + m.describe()
}

func (m *Misalignment) describe() string {
	var parts []string
	if len(m.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(m.Missing, ", "))
	}
	if len(m.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(m.Extra, ", "))
	}
	if len(m.Duplicate) > 0 {
		parts = append(parts, "duplicate "+strings.Join(m.Duplicate, ", "))
	}
	return strings.Join(parts, "; ")
}

// Feedback renders the retry instruction appended to the user prompt.
func (m *Misalignment) Feedback() string {
	var b strings.Builder
	b.WriteString("Your previous response did not cover the requested ids exactly.\n")
	if len(m.Missing) > 0 {
		fmt.Fprintf(&b, "You omitted: %s. Include one entry for each.\n", strings.Join(m.Missing, ", "))
	}
	if len(m.Extra) > 0 {
		fmt.Fprintf(&b, "You invented: %s. Remove them.\n", strings.Join(m.Extra, ", "))
	}
	if len(m.Duplicate) > 0 {
		fmt.Fprintf(&b, "You repeated: %s. Emit each id exactly once.\n", strings.Join(m.Duplicate, ", "))
	}
	b.WriteString("Respond again covering exactly the ids from the request, each exactly once.")
	return b.String()
}
