package report

// Labels maps category keys to display names
type Labels map[string]string

// DefaultLabels returns the display names of the correctness stages
// reported by the C compiler fuzzing harness
func DefaultLabels() Labels {
	return Labels{
		"0":  "Unavailable",
		"1":  "None",
		"2":  "Lexing",
		"3":  "Parsing",
		"6":  "Semantic",
		"7":  "Lambda",
		"18": "Inline Assembly",
		"23": "Valid",
	}
}

// Label returns the display name of key, or key itself when unknown
func (l Labels) Label(key string) string {
	if name, ok := l[key]; ok {
		return name
	}
	return key
}

// Apply maps every key to its display name
func (l Labels) Apply(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = l.Label(k)
	}
	return out
}

// Merge returns a copy of l overlaid with extra
func (l Labels) Merge(extra map[string]string) Labels {
	out := make(Labels, len(l)+len(extra))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
