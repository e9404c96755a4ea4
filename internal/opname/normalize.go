package opname

import "strings"

// Normalize canonicalizes operator names from configuration: case and
// separators are folded and known aliases resolve to the registered name.
// Unknown names come back folded so the caller can report them.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return ""
	}
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalName(candidate); ok {
			return canonical
		}
	}
	return normalized
}

func aliasCandidates(normalized string) []string {
	candidates := []string{normalized}
	for _, suffix := range []string{"_selection", "_crossover"} {
		if trimmed := strings.TrimSuffix(normalized, suffix); trimmed != normalized && trimmed != "" {
			candidates = append(candidates, trimmed)
		}
	}
	return candidates
}

func canonicalName(alias string) (string, bool) {
	switch strings.ReplaceAll(alias, "_", "") {
	case "tournament":
		return "tournament", true
	case "roulette", "roulettewheel", "proportional", "fitnessproportional":
		return "roulette", true
	case "elite", "truncation", "top":
		return "elite", true
	case "uniform":
		return "uniform", true
	case "singlepoint", "onepoint", "point":
		return "single_point", true
	default:
		return "", false
	}
}
