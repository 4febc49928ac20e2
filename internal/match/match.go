// Package match ranks directory students by skill/interest overlap with the
// signed-in user, backing the "People You May Know" panel.
package match

import (
	"sort"
	"strings"

	"github.com/campuslink/campuslink/internal/models"
)

const (
	// minCommonTags is the overlap a candidate needs to be suggested.
	minCommonTags = 2
	// maxSuggestions caps the panel size.
	maxSuggestions = 5
	// minContainLen guards the containment rule: a tag shorter than this can
	// only match by exact equality or the synonym table ("js" must not
	// substring-match "json").
	minContainLen = 5
)

// synonymGroups maps a canonical base term to the spellings treated as
// equivalent to it. Keys and values are already in normalized form.
var synonymGroups = map[string][]string{
	"javascript":      {"js", "ecmascript"},
	"typescript":      {"ts"},
	"python":          {"py"},
	"artificial":      {"ai", "artificialintelligence", "aiml"},
	"machinelearning": {"ml", "deeplearning"},
	"webdevelopment":  {"webdev", "webdeveloper"},
	"userinterface":   {"ui", "ux", "uiux", "uiuxdesign"},
	"database":        {"db", "databases", "sql"},
	"cybersecurity":   {"security", "infosec"},
	"photography":     {"photo"},
}

// Normalize lowercases a tag and strips every character that is not an ASCII
// letter or digit, so "Web Dev." and "webdev" compare equal. It is idempotent.
func Normalize(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tag) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveBase maps a normalized tag to its synonym-group base term, or
// returns the tag unchanged when it belongs to no group.
func resolveBase(norm string) string {
	if _, ok := synonymGroups[norm]; ok {
		return norm
	}
	for base, syns := range synonymGroups {
		for _, s := range syns {
			if s == norm {
				return base
			}
		}
	}
	return norm
}

// TagsMatch reports whether two raw tags refer to the same skill or interest.
// Rules are tried in order: exact normalized equality, containment (only when
// the contained tag is at least minContainLen characters), synonym group.
func TagsMatch(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if len(na) >= minContainLen && strings.Contains(nb, na) {
		return true
	}
	if len(nb) >= minContainLen && strings.Contains(na, nb) {
		return true
	}
	return resolveBase(na) == resolveBase(nb)
}

// Tags returns a student's combined tag list, skills first, preserving
// declared order.
func Tags(s models.Student) []string {
	tags := make([]string, 0, len(s.Skills)+len(s.Interests))
	tags = append(tags, s.Skills...)
	tags = append(tags, s.Interests...)
	return tags
}

// CommonTags returns the candidate-side labels of a greedy one-to-one matching
// between the two tag lists: each of the user's tags consumes at most one
// candidate tag, first match wins, and a consumed candidate tag is never
// reused. The result order follows the user's tag order.
func CommonTags(userTags, candidateTags []string) []string {
	used := make([]bool, len(candidateTags))
	var common []string
	for _, ut := range userTags {
		for i, ct := range candidateTags {
			if used[i] {
				continue
			}
			if TagsMatch(ut, ct) {
				used[i] = true
				common = append(common, ct)
				break
			}
		}
	}
	return common
}

// Suggestions ranks roster members by tag overlap with the student identified
// by selfID. The student themself is excluded, candidates sharing fewer than
// minCommonTags tags are dropped, ties keep roster order, and at most
// maxSuggestions candidates are returned. An unknown selfID yields nil.
func Suggestions(selfID int, roster []models.Student) []models.SuggestionCandidate {
	var self *models.Student
	for i := range roster {
		if roster[i].ID == selfID {
			self = &roster[i]
			break
		}
	}
	if self == nil {
		return nil
	}
	userTags := Tags(*self)

	var out []models.SuggestionCandidate
	for _, other := range roster {
		if other.ID == selfID {
			continue
		}
		common := CommonTags(userTags, Tags(other))
		if len(common) < minCommonTags {
			continue
		}
		out = append(out, models.SuggestionCandidate{
			Student:    other,
			MatchCount: len(common),
			CommonTags: common,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MatchCount > out[j].MatchCount
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
