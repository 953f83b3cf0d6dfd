package query

// ValidateFields checks that every name is in allowed. All offending names
// are reported, each once, in order of first appearance. It returns nil when
// the check passes.
func ValidateFields(param string, names []string, allowed []string) *ValidationError {
	if len(names) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}

	var verr *ValidationError
	reported := map[string]bool{}
	for _, name := range names {
		if _, ok := set[name]; ok || reported[name] {
			continue
		}
		reported[name] = true
		if verr == nil {
			verr = &ValidationError{}
		}
		verr.Add(param, name, "unknown field")
	}
	return verr
}
