package ics

import (
	"context"

	"taskcal/internal/normalize"
)

// Collect fetches, parses, and expands every source into normalizer rows.
// Per-source failures land in the error map keyed by source ID; records
// from healthy sources still come back, so one dead feed never blanks the
// week.
func (f *Fetcher) Collect(ctx context.Context, sources []Source, opt ExpandOptions) ([]normalize.Record, map[string]error) {
	if opt.Log == nil {
		opt.Log = f.log
	}

	results, errs := f.FetchAll(ctx, sources)
	recs := make([]normalize.Record, 0)
	for _, res := range results {
		events, err := f.Parse(res.Source, res.Body)
		if err != nil {
			errs[res.Source.ID] = err
			continue
		}
		occs, err := Expand(events, opt)
		if err != nil {
			errs[res.Source.ID] = err
			continue
		}
		recs = append(recs, Records(occs)...)
	}
	return recs, errs
}
