// Package voyager talks to LinkedIn's undocumented Voyager API and
// normalizes its shifting response shapes into one stable schema.
//
// Two transport paths exist: a session-managing client that logs in and
// returns typed objects alongside the raw payload, and a direct client that
// replays the browser's request shape against the JSON endpoints. A fallback
// orchestrator switches from the former to the latter when LinkedIn's
// anti-automation defenses reject the session-managed call.
package voyager

// SearchHit is one row of a people-search result. PublicIdentifier is the
// stable key used to fetch the full profile and is always non-empty; rows
// without one are discarded during parsing.
type SearchHit struct {
	FullName         string  `json:"fullName"`
	Headline         *string `json:"headline"`
	Location         *string `json:"location"`
	PublicIdentifier string  `json:"publicIdentifier"`
}

// ProfileResult is the canonical profile schema produced by both parsers.
type ProfileResult struct {
	FullName   string           `json:"fullName"`
	BirthDate  *string          `json:"birthDate"`
	Summary    *string          `json:"summary"`
	Experience []ExperienceItem `json:"experience"`
	Education  []EducationItem  `json:"education"`
	Skills     []string         `json:"skills"`
}

// ExperienceItem is one position entry. Start and End are "YYYY-M-D"-shaped
// strings built from whatever date components the upstream supplied; when no
// component is present the field is omitted entirely.
type ExperienceItem struct {
	Title   *string `json:"title"`
	Company *string `json:"company"`
	Start   string  `json:"start,omitempty"`
	End     string  `json:"end,omitempty"`
}

// EducationItem is one education entry.
type EducationItem struct {
	School *string `json:"school"`
	Degree *string `json:"degree"`
	Start  string  `json:"start,omitempty"`
	End    string  `json:"end,omitempty"`
}

// Probe is the verbatim outcome of an unauthenticated-shape request to the
// diagnostic endpoint. It is returned to the caller for interpretation, not
// interpreted here.
type Probe struct {
	Status      int    `json:"status"`
	Location    string `json:"location,omitempty"`
	BodyPreview string `json:"bodyPreview,omitempty"`
}
