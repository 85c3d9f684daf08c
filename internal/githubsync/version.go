package githubsync

import (
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// GitRef describes one tag or branch a repository exposes, as returned
// by a GitHub tags/branches listing.
type GitRef struct {
	Name string
	SHA  string
}

// VersionPlan is the set of refs a library should be synced at: its
// declared default, plus the most recent major version series.
type VersionPlan struct {
	Default string
	Series  []string // e.g. "v2", "v1", ordered newest-first
}

// pickDefaultVersion chooses the ref a library syncs when no explicit
// version is requested: the repository's declared default branch,
// falling back to "HEAD" when none is known.
func pickDefaultVersion(declaredDefaultBranch string) string {
	if declaredDefaultBranch != "" {
		return declaredDefaultBranch
	}
	return "HEAD"
}

// extractMajorVersion returns the numeric major version embedded in a
// semver-like tag (accepting a leading "v" and ignoring a failed parse),
// or "" if the tag isn't a recognizable version.
func extractMajorVersion(tag string) string {
	trimmed := strings.TrimPrefix(tag, "v")
	v, err := version.NewVersion(trimmed)
	if err != nil {
		return ""
	}
	segments := v.Segments()
	if len(segments) == 0 {
		return ""
	}
	return "v" + strconv.Itoa(segments[0])
}

// getLatestTagByMajor groups tags by major version and returns the
// highest-versioned tag within each, ordered by major descending.
func getLatestTagByMajor(refs []GitRef) []GitRef {
	type majorGroup struct {
		major int
		best  GitRef
		ver   *version.Version
	}
	groups := map[int]*majorGroup{}

	for _, ref := range refs {
		trimmed := strings.TrimPrefix(ref.Name, "v")
		v, err := version.NewVersion(trimmed)
		if err != nil {
			continue
		}
		major := v.Segments()[0]
		g, ok := groups[major]
		if !ok || v.GreaterThan(g.ver) {
			groups[major] = &majorGroup{major: major, best: ref, ver: v}
		}
	}

	ordered := make([]*majorGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].major > ordered[j].major
	})
	result := make([]GitRef, 0, len(ordered))
	for _, g := range ordered {
		result = append(result, g.best)
	}
	return result
}

// PickLatestForSeries returns the latest tag within a specific major
// series label (e.g. "v2"), or "" if the series has no tags.
func PickLatestForSeries(refs []GitRef, label string) string {
	for _, ref := range getLatestTagByMajor(refs) {
		if extractMajorVersion(ref.Name) == label {
			return ref.Name
		}
	}
	return ""
}

// BuildVersionPlan combines a library's declared default branch with
// the top N most recent major version series found among its tags,
// plus any version labels already synced previously (so a sync never
// silently drops a version series the caller is tracking).
func BuildVersionPlan(declaredDefaultBranch string, refs []GitRef, previouslySynced []string, maxSeries int) VersionPlan {
	if maxSeries <= 0 {
		maxSeries = DefaultMaxVersionSeries
	}

	plan := VersionPlan{Default: pickDefaultVersion(declaredDefaultBranch)}

	latest := getLatestTagByMajor(refs)
	seen := map[string]bool{}
	for i, ref := range latest {
		if i >= maxSeries {
			break
		}
		label := extractMajorVersion(ref.Name)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		plan.Series = append(plan.Series, label)
	}

	for _, label := range previouslySynced {
		if !seen[label] {
			seen[label] = true
			plan.Series = append(plan.Series, label)
		}
	}

	return plan
}
