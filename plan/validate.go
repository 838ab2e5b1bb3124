package plan

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LocationResolver finds a place name in free text and returns its
// canonical (English) form.
type LocationResolver interface {
	Resolve(text string) (string, bool)
}

// PlaceTable is a LocationResolver backed by a fixed alias table. Aliases
// are matched case-insensitively, longest first, following containsTerm.
type PlaceTable map[string]string

// Resolve returns the canonical name of the longest alias found in text.
func (t PlaceTable) Resolve(text string) (string, bool) {
	aliases := make([]string, 0, len(t))
	for alias := range t {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})

	lower := strings.ToLower(text)
	for _, alias := range aliases {
		if containsTerm(lower, strings.ToLower(alias)) {
			return t[alias], true
		}
	}
	return "", false
}

// DefaultPlaces maps common Korean city names and their romanizations to
// the English names the geocoder expects.
func DefaultPlaces() PlaceTable {
	return PlaceTable{
		"서울": "Seoul", "seoul": "Seoul",
		"부산": "Busan", "busan": "Busan",
		"인천": "Incheon", "incheon": "Incheon",
		"대구": "Daegu", "daegu": "Daegu",
		"대전": "Daejeon", "daejeon": "Daejeon",
		"광주": "Gwangju", "gwangju": "Gwangju",
		"울산": "Ulsan", "ulsan": "Ulsan",
		"수원": "Suwon", "suwon": "Suwon",
		"제주": "Jeju", "jeju": "Jeju",
	}
}

// Validator repairs plans that would create a weather-dependent event
// without first gathering weather information.
type Validator struct {
	// Keywords mark user text as weather-dependent. Matching is
	// case-insensitive and follows containsTerm.
	Keywords []string

	// WeatherTools are tools that already provide weather context.
	WeatherTools []string

	// EventTool is the event-creation tool the rule guards.
	EventTool string

	// WeatherTool is the tool prepended by the repair.
	WeatherTool string

	// Locations extracts the location argument from the user text.
	Locations LocationResolver

	// DefaultLocation is used when no location is found.
	DefaultLocation string
}

// DefaultValidator returns the validator used by the assistant.
func DefaultValidator() *Validator {
	return &Validator{
		Keywords: []string{
			"날씨", "기상", "야외", "우천", "비", "맑음",
			"weather", "outdoor", "outdoors", "rain", "rainy", "forecast", "sunny",
		},
		WeatherTools:    []string{"get_weather", "web_search"},
		EventTool:       "create_event",
		WeatherTool:     "get_weather",
		Locations:       DefaultPlaces(),
		DefaultLocation: "Seoul",
	}
}

// Repair returns the plan to execute and whether it differs from p. When
// the user text is weather-dependent and the plan starts with the event
// tool, a weather step is prepended and step-output placeholders in the
// original steps are renumbered to keep pointing at the same steps, which
// goes beyond a plain insert on purpose. p is never modified. Repair is
// idempotent.
func (v *Validator) Repair(p Plan, userText string) (Plan, bool) {
	if len(p.Steps) == 0 || !v.weatherDependent(userText) {
		return p, false
	}

	first := p.Steps[0].Tool
	if v.isWeatherTool(first) || first != v.EventTool {
		return p, false
	}

	location := v.DefaultLocation
	if v.Locations != nil {
		if resolved, ok := v.Locations.Resolve(userText); ok {
			location = resolved
		}
	}

	repaired := Plan{Steps: make([]Step, 0, len(p.Steps)+1)}
	repaired.Steps = append(repaired.Steps, Step{
		Tool: v.WeatherTool,
		Args: map[string]interface{}{"location": location},
	})
	for _, s := range p.Steps {
		args := make(map[string]interface{}, len(s.Args))
		for k, val := range s.Args {
			if str, ok := val.(string); ok {
				args[k] = shiftPlaceholders(str, 1)
			} else {
				args[k] = val
			}
		}
		repaired.Steps = append(repaired.Steps, Step{Tool: s.Tool, Args: args})
	}
	return repaired, true
}

func (v *Validator) weatherDependent(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range v.Keywords {
		if kw != "" && containsTerm(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// containsTerm reports whether term occurs in text. An ASCII term must
// stand as a whole word, so "rain" does not match "training". Other terms
// match as substrings, since Korean attaches particles to the word.
func containsTerm(text, term string) bool {
	if !isASCII(term) {
		return strings.Contains(text, term)
	}
	for start := 0; start <= len(text)-len(term); {
		i := strings.Index(text[start:], term)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(term)
		before, _ := utf8.DecodeLastRuneInString(text[:i])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (i == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		start = i + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (v *Validator) isWeatherTool(name string) bool {
	if name == v.WeatherTool {
		return true
	}
	for _, t := range v.WeatherTools {
		if t == name {
			return true
		}
	}
	return false
}
