// Package watchlist reads a YAML file of product URLs to seed tracking at startup.
//
//	- owner: alice
//	  urls:
//	    - https://shop.example/espresso-machine
//	- urls:                      # default owner
//	    - https://shop.example/grinder
package watchlist

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Group is one owner's block in the file.
type Group struct {
	Owner string   `yaml:"owner"`
	URLs  []string `yaml:"urls"`
}

// Entry is one URL to register for one owner.
type Entry struct {
	Owner string
	URL   string
}

type Loader struct {
	filePath     string
	defaultOwner string
}

func NewLoader(filePath, defaultOwner string) *Loader {
	return &Loader{filePath: filePath, defaultOwner: defaultOwner}
}

// Load reads the file and flattens it into entries, dropping blanks and duplicates.
func (l *Loader) Load() ([]Entry, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}

	data = expandEnv(data)

	var groups []Group
	if err := yaml.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist yaml: %w", err)
	}

	seen := make(map[Entry]bool)
	var out []Entry
	for _, g := range groups {
		owner := strings.TrimSpace(g.Owner)
		if owner == "" {
			owner = l.defaultOwner
		}
		for _, u := range g.URLs {
			e := Entry{Owner: owner, URL: strings.TrimSpace(u)}
			if e.URL == "" || seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	return out, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references; unknown variables become empty.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}
