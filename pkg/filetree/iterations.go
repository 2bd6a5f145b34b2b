package filetree

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

const (
	maxDescriptionWidth = 60
	descriptionColumn   = 61
	ageColumn           = 15
	mergeBaseLabel      = "=== Merge Base ==="
)

// UpdateOption is one entry of the base update selector.
type UpdateOption struct {
	Label string
	ID    int
}

// UpdateOptions lists iterations newest first, followed by the merge base as update 0.
func UpdateOptions(iterations []types.Iteration, now time.Time) []UpdateOption {
	sorted := slices.Clone(iterations)
	slices.Reverse(sorted)

	out := make([]UpdateOption, 0, len(sorted)+1)
	for _, it := range sorted {
		desc := it.Description
		if runewidth.StringWidth(desc) > maxDescriptionWidth {
			desc = runewidth.Truncate(desc, descriptionColumn, "...")
		}
		label := fmt.Sprintf("Update %-4d %s %s ago",
			it.ID,
			runewidth.FillRight(desc, descriptionColumn),
			runewidth.FillLeft(humanizeAge(now.Sub(it.CreatedAt)), ageColumn))
		out = append(out, UpdateOption{ID: it.ID, Label: label})
	}
	return append(out, UpdateOption{ID: 0, Label: mergeBaseLabel})
}

// UpdateOptions fetches prID's iterations and lists them for the selector.
func (e *Enhancer) UpdateOptions(ctx context.Context, prID int) ([]UpdateOption, error) {
	pr, err := e.memo.Get(ctx, prID)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %d: %w", prID, err)
	}
	iterations, err := e.api.Iterations(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("fetching iterations of pull request %d: %w", prID, err)
	}
	return UpdateOptions(iterations, time.Now()), nil
}

// CompareURL points pageURL at a diff against base. Without an explicit iteration the
// latest one is compared.
func CompareURL(pageURL string, base, latest int) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing page URL: %w", err)
	}
	q := u.Query()
	q.Set("base", strconv.Itoa(base))
	if q.Get("iteration") == "" {
		q.Set("iteration", strconv.Itoa(latest))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func humanizeAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	case d < 365*24*time.Hour:
		return plural(int(d/(30*24*time.Hour)), "month")
	default:
		return plural(int(d/(365*24*time.Hour)), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
