// Package capability holds the JS-API capability lists granted to each
// page. The lists are opaque to the server: they are forwarded in the
// signed payload for the client runtime to interpret.
package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Page identifiers, matching the route each page is served from.
const (
	PageBindScore   = "auth-score"
	PageBindLibrary = "auth-library"
	PageScoreReport = "score-report"
)

// Set maps a page to the capabilities its signed payload grants.
type Set map[string][]string

// Defaults returns the built-in capability lists: the binding pages hide
// the options menu, the report page enables the sharing menu items.
func Defaults() Set {
	return Set{
		PageBindScore:   {"hideOptionMenu"},
		PageBindLibrary: {"hideOptionMenu"},
		PageScoreReport: {
			"onMenuShareTimeline",
			"onMenuShareAppMessage",
			"onMenuShareQQ",
			"onMenuShareWeibo",
			"onMenuShareQZone",
		},
	}
}

// Load returns the defaults overlaid with the lists from the YAML file at
// path, when one is configured. Pages absent from the file keep their
// defaults.
func Load(path string) (Set, error) {
	set := Defaults()

	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read capabilities file: %w", err)
	}

	overrides := Set{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("could not parse capabilities file: %w", err)
	}

	for page, list := range overrides {
		set[page] = list
	}

	return set, nil
}

// For returns the capability list for a page; unknown pages get no
// capabilities.
func (s Set) For(page string) []string {
	return s[page]
}
