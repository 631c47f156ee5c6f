package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/relay-crm/relay/internal/repository"
)

// connectedAtLayouts are the date formats seen in connection exports.
var connectedAtLayouts = []string{
	"02 Jan 2006",
	"2006-01-02",
	time.RFC3339,
}

// RowError records one rejected CSV row with the reason it was skipped.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ParseCSV reads contact rows from a CSV export. The header row is
// mandatory; column order is free. Rows missing a name are skipped and
// reported, they never abort the parse.
func ParseCSV(r io.Reader) ([]*repository.Profile, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[normalizeHeader(name)] = i
	}
	if _, ok := cols["full_name"]; !ok {
		if _, ok := cols["first_name"]; !ok {
			return nil, nil, fmt.Errorf("csv has no full_name or first_name column")
		}
	}

	var profiles []*repository.Profile
	var rowErrs []RowError
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: err.Error()})
			continue
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		name := get("full_name")
		if name == "" {
			name = strings.TrimSpace(get("first_name") + " " + get("last_name"))
		}
		if name == "" {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "missing name"})
			continue
		}

		p := &repository.Profile{
			FullName:    name,
			Headline:    firstNonEmpty(get("headline"), get("position")),
			Company:     get("company"),
			CompanySize: get("company_size"),
			Industry:    get("industry"),
			LinkedinURL: firstNonEmpty(get("linkedin_url"), get("url")),
			City:        get("city"),
			State:       get("state"),
			Country:     get("country"),
			GeoLocation: firstNonEmpty(get("geo_location"), get("location")),
			About:       get("about"),
			Experience:  get("experience"),
			Skills:      get("skills"),
		}

		if s := get("followers"); s != "" {
			if n, err := strconv.Atoi(strings.ReplaceAll(s, ",", "")); err == nil {
				p.Followers = n
			}
		}

		if s := firstNonEmpty(get("connected_at"), get("connected_on")); s != "" {
			if ts, ok := parseConnectedAt(s); ok {
				p.ConnectedAt = &ts
			}
		}

		switch strings.ToLower(get("hiring_status")) {
		case "hiring":
			p.HiringStatus = repository.HiringStatusHiring
		case "open_to_work", "open to work":
			p.HiringStatus = repository.HiringStatusOpenToWork
		}

		p.IsHiring = parseBool(get("is_hiring")) || p.HiringStatus == repository.HiringStatusHiring
		p.IsOpenToWork = parseBool(get("is_open_to_work")) || p.HiringStatus == repository.HiringStatusOpenToWork
		p.IsCompanyOwner = parseBool(get("is_company_owner"))
		// Older exports spell the column without the second underscore.
		p.HasPEVCRole = parseBool(firstNonEmpty(get("has_pe_vc_role"), get("has_pevc_role")))

		profiles = append(profiles, p)
	}

	return profiles, rowErrs, nil
}

func normalizeHeader(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.TrimPrefix(name, "\ufeff") // Excel BOM
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseConnectedAt(s string) (time.Time, bool) {
	for _, layout := range connectedAtLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}
