// Package pattern decides whether a path is selected by an include/exclude rule set.
//
// Rules without a path separator apply to the base name of the path:
//
//	"report."  stem rule, base name starts with "report."
//	".gz"      extension rule, base name ends with ".gz"
//	"notes"    exact base name
//
// For names with several dots the stem is everything before any of the dots and
// the extension is any dotted suffix, so "archive.tar.gz" matches "archive.",
// "archive.tar.", ".gz" and ".tar.gz", but not ".tar".
//
// Rules containing "/" or "\" are anchored regular expressions over the
// slash-separated relative path. A rule with "\" but no "/" that does not
// compile, or compiles but does not match, is retried with "\" read as the
// path separator, so `sub\file.txt` selects "sub/file.txt". Invalid
// expressions never match. There is no glob expansion.
package pattern

import (
	"path"
	"regexp"
	"strings"
	"sync"
)

const (
	All  = "all"
	None = "none"
)

var (
	regexCache sync.Map // pattern -> *regexp.Regexp (nil when invalid)
)

// Matches reports whether p is selected by any of patterns.
func Matches(p string, patterns []string) bool {
	for _, pat := range patterns {
		if pat == All {
			return true
		}
	}
	for _, pat := range patterns {
		if pat == None {
			return false
		}
	}

	p = normalize(p)
	base := path.Base(p)
	for _, pat := range patterns {
		if matchOne(p, base, pat) {
			return true
		}
	}
	return false
}

func matchOne(p, base, pat string) bool {
	if pat == "" {
		return false
	}
	if !strings.ContainsAny(pat, `/\`) {
		switch {
		case strings.HasSuffix(pat, "."):
			return strings.HasPrefix(base, pat)
		case strings.HasPrefix(pat, "."):
			return strings.HasSuffix(base, pat)
		default:
			return base == pat
		}
	}

	if re := compile(pat); re != nil && re.MatchString(p) {
		return true
	}
	if strings.Contains(pat, "/") {
		return false
	}
	sep := strings.ReplaceAll(pat, `\`, "/")
	if re := compile(sep); re != nil {
		return re.MatchString(p)
	}
	return p == sep
}

func compile(pat string) *regexp.Regexp {
	if cached, ok := regexCache.Load(pat); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("^(?:" + pat + ")$")
	if err != nil {
		re = nil
	}
	regexCache.Store(pat, re)
	return re
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(p, "./")
}

// Filter pairs an include list with an exclude list.
type Filter struct {
	Include []string
	Exclude []string
}

// Allows reports whether p matches at least one include pattern and no exclude pattern.
// An empty include list includes nothing.
func (f Filter) Allows(p string) bool {
	if !Matches(p, f.Include) {
		return false
	}
	if len(f.Exclude) == 0 {
		return true
	}
	return !Matches(p, f.Exclude)
}

// Everything is the filter used when no rules are configured.
func Everything() Filter {
	return Filter{Include: []string{All}, Exclude: []string{None}}
}
