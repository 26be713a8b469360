package ratelimit

import "strings"

// Match returns the rule for method+path. Exact paths win over prefixes.
func Match(path, method string, rules []Rule) *Rule {
	var prefix *Rule
	for i := range rules {
		r := &rules[i]
		if r.Method != method {
			continue
		}
		if r.Path == path {
			return r
		}
		if prefix == nil && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			prefix = r
		}
	}
	return prefix
}
