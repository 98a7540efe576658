package cachetag

import (
	"regexp"
	"strings"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

const Unnamed = "unnamed"

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

type TagGenerator struct {
	// DefaultTag is attached to every entry, e.g. demon_dextral_horn.
	DefaultTag string
}

func NewTagGenerator(defaultTag string) TagGenerator {
	return TagGenerator{DefaultTag: defaultTag}
}

// Generate returns the default tag, the route tag and the user tag of target.
func (g TagGenerator) Generate(target snapshot.TargetRoute, userIdentifier string) []string {
	return Merge(g.DefaultTag, g.RouteTag(target.RouteName), Normalize(userIdentifier))
}

// RouteTag returns the tag of every entry for the named route, e.g.
// demon_dextral_horn:products_show.
func (g TagGenerator) RouteTag(routeName string) string {
	return g.DefaultTag + ":" + Normalize(routeName)
}

// Merge returns tags with the default tag first, without empties or duplicates.
func Merge(defaultTag string, tags ...string) []string {
	all := make([]string, 0, len(tags)+1)
	seen := map[string]bool{}
	for _, tag := range append([]string{defaultTag}, tags...) {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		all = append(all, tag)
	}
	return all
}

// Normalize lowercases name, collapses runs of non-alphanumerics into "_" and
// trims underscores. Blank names become "unnamed".
func Normalize(name string) string {
	if strings.TrimSpace(name) == "" {
		return Unnamed
	}
	name = nonAlphanumeric.ReplaceAllString(strings.ToLower(name), "_")
	if name = strings.Trim(name, "_"); name == "" {
		return Unnamed
	}
	return name
}
