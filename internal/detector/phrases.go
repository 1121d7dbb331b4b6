package detector

import "regexp"

// phraseFamily is a named group of regular expressions over normalized text.
type phraseFamily struct {
	name     string
	patterns []*regexp.Regexp
}

func family(name string, exprs ...string) phraseFamily {
	f := phraseFamily{name: name}
	for _, e := range exprs {
		f.patterns = append(f.patterns, regexp.MustCompile(e))
	}
	return f
}

// matches returns the matched substrings, one per pattern that hit.
func (f phraseFamily) matches(text string) []string {
	var out []string
	for _, re := range f.patterns {
		if m := re.FindString(text); m != "" {
			out = append(out, m)
		}
	}
	return out
}
