package voyager

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// searchRowCap bounds how many rows a single search parse emits, regardless
// of what the caller asked for. The caller trims to its own limit afterward.
const searchRowCap = 25

// entityBag groups the heterogeneous entities of a payload's included[]
// side-array by type tag. It lives only for the duration of one parse.
type entityBag struct {
	miniProfiles []map[string]any
	positions    []map[string]any
	educations   []map[string]any
	skills       []map[string]any
}

// typeNeedles maps bag membership to the substring matched (case-
// insensitively) against an entity's type tag. Matching is deliberately
// loose: upstream renames tags without notice, and a tag containing several
// needles lands in several buckets. Unrecognized tags are dropped.
var typeNeedles = []struct {
	needle string
	add    func(*entityBag, map[string]any)
}{
	{"miniprofile", func(b *entityBag, e map[string]any) { b.miniProfiles = append(b.miniProfiles, e) }},
	{"position", func(b *entityBag, e map[string]any) { b.positions = append(b.positions, e) }},
	{"education", func(b *entityBag, e map[string]any) { b.educations = append(b.educations, e) }},
	{"skill", func(b *entityBag, e map[string]any) { b.skills = append(b.skills, e) }},
}

// groupIncluded buckets the payload's included[] entities by type tag.
func groupIncluded(payload map[string]any) entityBag {
	var bag entityBag
	included, ok := payload["included"].([]any)
	if !ok {
		return bag
	}
	for _, item := range included {
		entity, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tag := strings.ToLower(entityType(entity))
		if tag == "" {
			continue
		}
		for _, n := range typeNeedles {
			if strings.Contains(tag, n.needle) {
				n.add(&bag, entity)
			}
		}
	}
	return bag
}

// entityType returns an entity's type tag under either of the tag keys the
// upstream has used.
func entityType(entity map[string]any) string {
	for _, key := range []string{"$type", "type", "$recipeType"} {
		if s, ok := entity[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// extractor pulls one candidate value for a target field out of a source
// object. Extractors are evaluated in order and the first non-empty value
// wins, which keeps the tolerance for upstream schema drift explicit and
// testable per field.
type extractor func(map[string]any) string

// field reads a top-level string key.
func field(key string) extractor {
	return func(m map[string]any) string {
		s, _ := m[key].(string)
		return strings.TrimSpace(s)
	}
}

// nested walks a chain of object keys and reads a string at the end.
func nested(path ...string) extractor {
	return func(m map[string]any) string {
		cur := m
		for i, key := range path {
			if i == len(path)-1 {
				s, _ := cur[key].(string)
				return strings.TrimSpace(s)
			}
			next, ok := cur[key].(map[string]any)
			if !ok {
				return ""
			}
			cur = next
		}
		return ""
	}
}

// joinedName builds "First Last" from the usual name key pairs.
func joinedName(firstKey, lastKey string) extractor {
	return func(m map[string]any) string {
		first := field(firstKey)(m)
		last := field(lastKey)(m)
		switch {
		case first != "" && last != "":
			return first + " " + last
		case first != "":
			return first
		default:
			return last
		}
	}
}

// firstOf evaluates extractors in order and returns the first non-empty
// value, or "".
func firstOf(m map[string]any, extractors ...extractor) string {
	for _, ex := range extractors {
		if v := ex(m); v != "" {
			return v
		}
	}
	return ""
}

// firstOfPtr is firstOf with a nil result when every alias misses.
func firstOfPtr(m map[string]any, extractors ...extractor) *string {
	if v := firstOf(m, extractors...); v != "" {
		return &v
	}
	return nil
}

// Ordered alias lists per target field. The upstream schema has shifted over
// time; new spellings go at the front, older ones stay as fallbacks.
var (
	profileNameAliases = []extractor{
		joinedName("firstName", "lastName"),
		joinedName("localizedFirstName", "localizedLastName"),
		field("fullName"),
	}
	summaryAliases = []extractor{
		field("summary"),
		field("about"),
		field("description"),
	}
	positionTitleAliases = []extractor{
		field("title"),
		field("name"),
		nested("title", "text"),
	}
	positionCompanyAliases = []extractor{
		field("companyName"),
		nested("company", "name"),
		nested("miniCompany", "name"),
		nested("company", "miniCompany", "name"),
	}
	schoolAliases = []extractor{
		field("schoolName"),
		nested("school", "name"),
		nested("school", "schoolName"),
	}
	degreeAliases = []extractor{
		field("degreeName"),
		field("fieldOfStudy"),
	}
	hitNameAliases = []extractor{
		nested("title", "text"),
		field("fullName"),
		joinedName("firstName", "lastName"),
	}
	hitHeadlineAliases = []extractor{
		nested("headline", "text"),
		nested("primarySubtitle", "text"),
		field("occupation"),
		field("headline"),
	}
	hitLocationAliases = []extractor{
		nested("subline", "text"),
		nested("secondarySubtitle", "text"),
		field("locationName"),
	}
	miniProfileNameAliases = []extractor{
		joinedName("firstName", "lastName"),
		nested("name", "text"),
	}
)

// ParseProfile is the typed+raw hybrid entry point: scalar fields come from
// the session client's typed profile object, the experience/education/skills
// sections from the raw payload's included[] side-array.
func ParseProfile(typed map[string]any, raw map[string]any) (*ProfileResult, error) {
	name := firstOf(typed, profileNameAliases...)
	if name == "" {
		return nil, fmt.Errorf("%w: profile object carries no name", ErrParse)
	}

	result := &ProfileResult{
		FullName: name,
		Summary:  firstOfPtr(typed, summaryAliases...),
	}
	if birth := birthDateOf(typed); birth != "" {
		result.BirthDate = &birth
	}

	fillSections(result, groupIncluded(raw))
	return result, nil
}

// ParseRawProfile is the raw-only entry point used by the direct path: the
// name comes from a mini-profile entity, sections from the same grouping the
// hybrid parser uses.
func ParseRawProfile(raw map[string]any) (*ProfileResult, error) {
	bag := groupIncluded(raw)

	var name string
	for _, mini := range bag.miniProfiles {
		if name = firstOf(mini, miniProfileNameAliases...); name != "" {
			break
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no mini-profile entity in payload", ErrParse)
	}

	result := &ProfileResult{FullName: name}
	for _, mini := range bag.miniProfiles {
		if result.Summary == nil {
			result.Summary = firstOfPtr(mini, summaryAliases...)
		}
		if result.BirthDate == nil {
			if birth := birthDateOf(mini); birth != "" {
				result.BirthDate = &birth
			}
		}
	}

	fillSections(result, bag)
	return result, nil
}

func fillSections(result *ProfileResult, bag entityBag) {
	result.Experience = make([]ExperienceItem, 0, len(bag.positions))
	for _, pos := range bag.positions {
		start, end := dateRangeOf(pos)
		result.Experience = append(result.Experience, ExperienceItem{
			Title:   firstOfPtr(pos, positionTitleAliases...),
			Company: firstOfPtr(pos, positionCompanyAliases...),
			Start:   start,
			End:     end,
		})
	}

	result.Education = make([]EducationItem, 0, len(bag.educations))
	for _, edu := range bag.educations {
		start, end := dateRangeOf(edu)
		result.Education = append(result.Education, EducationItem{
			School: firstOfPtr(edu, schoolAliases...),
			Degree: firstOfPtr(edu, degreeAliases...),
			Start:  start,
			End:    end,
		})
	}

	result.Skills = make([]string, 0, len(bag.skills))
	for _, skill := range bag.skills {
		if name := firstOf(skill, field("name"), nested("name", "text")); name != "" {
			result.Skills = append(result.Skills, name)
		}
	}
}

// ParseSearchHits extracts people-search rows from a raw blended-search
// payload. The primary path walks the nested data.elements[].elements[] row
// structure; when that yields nothing, a secondary pass over included[]
// mini-profile entities recovers what it can, because the search response
// shape varies by account and context. A parse yielding zero rows is not an
// error. Emitted rows are capped at searchRowCap.
func ParseSearchHits(raw map[string]any) []SearchHit {
	hits := hitsFromElements(raw)
	if len(hits) == 0 {
		hits = hitsFromMiniProfiles(raw)
	}
	if len(hits) > searchRowCap {
		hits = hits[:searchRowCap]
	}
	return hits
}

func hitsFromElements(raw map[string]any) []SearchHit {
	data, ok := raw["data"].(map[string]any)
	if !ok {
		return nil
	}
	outer, ok := data["elements"].([]any)
	if !ok {
		return nil
	}

	var hits []SearchHit
	for _, block := range outer {
		blockMap, ok := block.(map[string]any)
		if !ok {
			continue
		}
		inner, ok := blockMap["elements"].([]any)
		if !ok {
			continue
		}
		for _, row := range inner {
			rowMap, ok := row.(map[string]any)
			if !ok {
				continue
			}
			if hit, ok := hitFromRow(rowMap); ok {
				hits = append(hits, hit)
			}
		}
	}
	return hits
}

func hitFromRow(row map[string]any) (SearchHit, bool) {
	publicID := firstOf(row,
		field("publicIdentifier"),
		func(m map[string]any) string { return publicIDFromURL(field("navigationUrl")(m)) },
		func(m map[string]any) string { return publicIDFromURL(nested("navigationContext", "url")(m)) },
	)
	if publicID == "" {
		return SearchHit{}, false
	}
	return SearchHit{
		FullName:         firstOf(row, hitNameAliases...),
		Headline:         firstOfPtr(row, hitHeadlineAliases...),
		Location:         firstOfPtr(row, hitLocationAliases...),
		PublicIdentifier: publicID,
	}, true
}

func hitsFromMiniProfiles(raw map[string]any) []SearchHit {
	bag := groupIncluded(raw)
	var hits []SearchHit
	for _, mini := range bag.miniProfiles {
		publicID := field("publicIdentifier")(mini)
		if publicID == "" {
			continue
		}
		hits = append(hits, SearchHit{
			FullName:         firstOf(mini, miniProfileNameAliases...),
			Headline:         firstOfPtr(mini, field("occupation"), field("headline")),
			Location:         firstOfPtr(mini, hitLocationAliases...),
			PublicIdentifier: publicID,
		})
	}
	return hits
}

var publicIDRe = regexp.MustCompile(`/in/([^/?#]+)`)

// ExtractPublicIdentifier accepts either a bare public identifier or a full
// profile URL and returns the bare identifier. URLs that do not point at a
// profile (company pages, job listings) yield "".
func ExtractPublicIdentifier(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if strings.Contains(s, "/") {
		return publicIDFromURL(s)
	}
	return s
}

// publicIDFromURL pulls the public identifier out of a profile URL.
func publicIDFromURL(urlStr string) string {
	if m := publicIDRe.FindStringSubmatch(urlStr); len(m) > 1 {
		return m[1]
	}
	return ""
}

// dateRangeOf extracts normalized start/end dates from whichever date
// container the entity carries.
func dateRangeOf(entity map[string]any) (start, end string) {
	for _, key := range []string{"timePeriod", "dateRange"} {
		period, ok := entity[key].(map[string]any)
		if !ok {
			continue
		}
		for _, sk := range []string{"startDate", "start"} {
			if d, ok := period[sk].(map[string]any); ok {
				start = formatDate(d)
				break
			}
		}
		for _, ek := range []string{"endDate", "end"} {
			if d, ok := period[ek].(map[string]any); ok {
				end = formatDate(d)
				break
			}
		}
		return start, end
	}
	return "", ""
}

// birthDateOf extracts a normalized birth date from a profile object.
func birthDateOf(obj map[string]any) string {
	for _, key := range []string{"birthDateOn", "birthDate"} {
		if d, ok := obj[key].(map[string]any); ok {
			return formatDate(d)
		}
	}
	return ""
}

// formatDate joins the non-empty year/month/day components of a date object
// with "-": {year:2020, month:5} becomes "2020-5", {day:3} becomes "3", and
// an empty object yields "" so the field can be omitted rather than
// serialized as an empty string.
func formatDate(d map[string]any) string {
	var parts []string
	for _, key := range []string{"year", "month", "day"} {
		if s := numString(d[key]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "-")
}

// numString renders a JSON number (or numeric string) without decoration.
func numString(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case int:
		return strconv.Itoa(n)
	case string:
		return strings.TrimSpace(n)
	default:
		return ""
	}
}
