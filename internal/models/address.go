package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidAddress is wrapped by every address validation failure
var ErrInvalidAddress = errors.New("invalid address")

// ValidationError describes why an address was rejected
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidAddress }

// Address is an Australian street address. It is a value type and is never
// mutated after construction.
type Address struct {
	AddressLine string `json:"addressLine"`
	Suburb      string `json:"suburb"`
	State       string `json:"state"`
	Postcode    string `json:"postcode"`
}

var states = map[string]string{
	"vic":                          "VIC",
	"victoria":                     "VIC",
	"nsw":                          "NSW",
	"new south wales":              "NSW",
	"qld":                          "QLD",
	"queensland":                   "QLD",
	"sa":                           "SA",
	"south australia":              "SA",
	"wa":                           "WA",
	"western australia":            "WA",
	"tas":                          "TAS",
	"tasmania":                     "TAS",
	"nt":                           "NT",
	"northern territory":           "NT",
	"act":                          "ACT",
	"australian capital territory": "ACT",
}

// Street type abbreviations expanded when building cache keys, so that
// "12 Smith St" and "12 Smith Street" share an entry.
var streetTypes = map[string]string{
	"st":   "street",
	"rd":   "road",
	"ave":  "avenue",
	"av":   "avenue",
	"dr":   "drive",
	"ct":   "court",
	"pl":   "place",
	"cres": "crescent",
	"cr":   "crescent",
	"hwy":  "highway",
	"pde":  "parade",
	"tce":  "terrace",
	"cl":   "close",
	"blvd": "boulevard",
	"bvd":  "boulevard",
	"ln":   "lane",
	"gr":   "grove",
	"sq":   "square",
	"esp":  "esplanade",
	"cct":  "circuit",
	"wy":   "way",
}

var (
	trailingStatePattern = regexp.MustCompile(`(?i)[,\s]+(` + statePatternAlternation() + `)[,\s]+(\d{4})\s*$`)
	countrySuffixPattern = regexp.MustCompile(`(?i)[,\s]+australia$`)
	postcodePattern      = regexp.MustCompile(`^\d{4}$`)
	keyCleanPattern      = regexp.MustCompile(`[^a-z0-9/]+`)
	slugCleanPattern     = regexp.MustCompile(`[^a-z0-9]+`)
)

func statePatternAlternation() string {
	// Longest names first so "south australia" wins over "sa"
	names := []string{
		"australian capital territory", "northern territory", "western australia",
		"new south wales", "south australia", "queensland", "tasmania", "victoria",
		"nsw", "vic", "qld", "tas", "act", "sa", "wa", "nt",
	}
	return strings.Join(names, "|")
}

// NewAddress validates the parts and returns a normalized Address
func NewAddress(line, suburb, state, postcode string) (Address, error) {
	input := strings.Join([]string{line, suburb, state, postcode}, ", ")

	line = collapseSpaces(line)
	suburb = collapseSpaces(suburb)
	postcode = strings.TrimSpace(postcode)

	if line == "" {
		return Address{}, &ValidationError{Input: input, Reason: "street line is empty"}
	}
	if suburb == "" {
		return Address{}, &ValidationError{Input: input, Reason: "suburb is empty"}
	}
	code, ok := states[strings.ToLower(collapseSpaces(state))]
	if !ok {
		return Address{}, &ValidationError{Input: input, Reason: fmt.Sprintf("unknown state %q", state)}
	}
	if !postcodePattern.MatchString(postcode) {
		return Address{}, &ValidationError{Input: input, Reason: fmt.Sprintf("postcode %q must be four digits", postcode)}
	}

	return Address{
		AddressLine: line,
		Suburb:      suburb,
		State:       code,
		Postcode:    postcode,
	}, nil
}

// ParseAddress parses free text such as "12 Smith St, Richmond VIC 3121".
// A trailing ", Australia" is ignored.
func ParseAddress(text string) (Address, error) {
	s := collapseSpaces(text)
	s = countrySuffixPattern.ReplaceAllString(s, "")
	if s == "" {
		return Address{}, &ValidationError{Input: text, Reason: "address is empty"}
	}

	m := trailingStatePattern.FindStringSubmatchIndex(s)
	if m == nil {
		return Address{}, &ValidationError{Input: text, Reason: "expected a state and four digit postcode at the end"}
	}
	state := s[m[2]:m[3]]
	postcode := s[m[4]:m[5]]
	rest := strings.TrimRight(s[:m[0]], ", ")

	idx := strings.LastIndex(rest, ",")
	if idx < 0 {
		return Address{}, &ValidationError{Input: text, Reason: "expected a comma between street and suburb"}
	}

	addr, err := NewAddress(rest[:idx], rest[idx+1:], state, postcode)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Input = text
		}
		return Address{}, err
	}
	return addr, nil
}

// Key returns the canonical string used to key cache entries
func (a Address) Key() string {
	tokens := strings.Fields(keyCleanPattern.ReplaceAllString(strings.ToLower(a.AddressLine), " "))
	if n := len(tokens); n > 1 {
		if full, ok := streetTypes[tokens[n-1]]; ok {
			tokens[n-1] = full
		}
	}
	suburb := strings.Join(strings.Fields(keyCleanPattern.ReplaceAllString(strings.ToLower(a.Suburb), " ")), " ")

	return strings.Join([]string{
		strings.Join(tokens, " "),
		suburb,
		strings.ToLower(a.State),
		a.Postcode,
	}, "|")
}

// String renders the display form, e.g. "12 Smith Street, Richmond VIC 3121"
func (a Address) String() string {
	caser := cases.Title(language.English)
	return fmt.Sprintf("%s, %s %s %s", caser.String(a.AddressLine), caser.String(a.Suburb), a.State, a.Postcode)
}

// Slug renders the hyphenated form used in listing site URLs
func (a Address) Slug() string {
	raw := strings.ToLower(strings.Join([]string{a.AddressLine, a.Suburb, a.State, a.Postcode}, " "))
	return strings.Trim(slugCleanPattern.ReplaceAllString(raw, "-"), "-")
}

// SuburbSlug renders "richmond-vic-3121"
func (a Address) SuburbSlug() string {
	raw := strings.ToLower(strings.Join([]string{a.Suburb, a.State, a.Postcode}, " "))
	return strings.Trim(slugCleanPattern.ReplaceAllString(raw, "-"), "-")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
