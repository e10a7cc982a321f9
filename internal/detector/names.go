package detector

import (
	"regexp"
	"sort"
	"strconv"
)

// Ultralytics exports store class names as a Python dict literal in the
// "names" metadata entry, e.g. {0: 'hole', 1: 'stain'}.
var namesEntry = regexp.MustCompile(`(\d+)\s*:\s*(?:'([^']*)'|"([^"]*)")`)

func parseClassNames(raw string) []string {
	matches := namesEntry.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	byID := make(map[int]string, len(matches))
	ids := make([]int, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		name := m[2]
		if name == "" {
			name = m[3]
		}
		if _, seen := byID[id]; !seen {
			ids = append(ids, id)
		}
		byID[id] = name
	}
	if len(ids) == 0 {
		return nil
	}

	sort.Ints(ids)
	names := make([]string, ids[len(ids)-1]+1)
	for id, name := range byID {
		names[id] = name
	}
	return names
}
