package partition

import (
	"context"
	"strings"
	"time"
)

const dashLayout = "2006-01-02"

// Context is the full anchor bundle derived from the latest partition key.
// Everything except TodayISO is date arithmetic on the anchor, not the clock.
type Context struct {
	LatestDS           string // 20260209
	LatestDSDash       string // 2026-02-09
	TodayISO           string // real calendar date, for display only
	Start7D            string // anchor - 6 days, plain
	Start7DDash        string
	Start30D           string // anchor - 29 days, plain
	Start30DDash       string
	StartThisMonthDash string
	StartLastMonthDash string
	EndLastMonthDash   string
}

// DateContext derives the anchor bundle. No I/O beyond the cached Latest
// lookup.
func (r *Resolver) DateContext(ctx context.Context) Context {
	latest := r.Latest(ctx)

	anchor, err := time.Parse(KeyLayout, latest)
	if err != nil {
		// Latest only ever returns well-formed keys; guard anyway.
		anchor = r.clock.Now().AddDate(0, 0, -1)
		latest = anchor.Format(KeyLayout)
	}

	thisMonth := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
	endLastMonth := thisMonth.AddDate(0, 0, -1)
	lastMonth := time.Date(endLastMonth.Year(), endLastMonth.Month(), 1, 0, 0, 0, 0, time.UTC)

	return Context{
		LatestDS:           latest,
		LatestDSDash:       anchor.Format(dashLayout),
		TodayISO:           r.clock.Now().Format(dashLayout),
		Start7D:            anchor.AddDate(0, 0, -6).Format(KeyLayout),
		Start7DDash:        anchor.AddDate(0, 0, -6).Format(dashLayout),
		Start30D:           anchor.AddDate(0, 0, -29).Format(KeyLayout),
		Start30DDash:       anchor.AddDate(0, 0, -29).Format(dashLayout),
		StartThisMonthDash: thisMonth.Format(dashLayout),
		StartLastMonthDash: lastMonth.Format(dashLayout),
		EndLastMonthDash:   endLastMonth.Format(dashLayout),
	}
}

// Replacer builds the placeholder substitution applied to guarded SQL. The
// guard validates token form; this swaps in the live values afterwards.
func (c Context) Replacer() *strings.Replacer {
	return strings.NewReplacer(
		"{latest_ds}", c.LatestDS,
		"{latest_ds_dash}", c.LatestDSDash,
		"{today_iso}", c.TodayISO,
		"{start_7d}", c.Start7D,
		"{start_7d_dash}", c.Start7DDash,
		"{start_30d}", c.Start30D,
		"{start_30d_dash}", c.Start30DDash,
		"{start_this_month_dash}", c.StartThisMonthDash,
		"{start_last_month_dash}", c.StartLastMonthDash,
		"{end_last_month_dash}", c.EndLastMonthDash,
	)
}
