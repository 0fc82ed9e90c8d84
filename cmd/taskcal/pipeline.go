package main

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskcal/internal/config"
	"taskcal/internal/convert"
	"taskcal/internal/epd"
	"taskcal/internal/ics"
	"taskcal/internal/normalize"
	"taskcal/internal/ticktick"
	"taskcal/internal/web"
	"taskcal/internal/weekview"
)

// pipeline owns one fetch-normalize-render-display pass. A mutex keeps
// passes serial; the panel cannot absorb overlapping refreshes anyway.
type pipeline struct {
	cfg     *config.Config
	loc     *time.Location
	gen     *weekview.Generator
	fetcher *ics.Fetcher
	tasks   *ticktick.Client
	sources []ics.Source
	panel   epd.Panel
	srv     *web.Server
	log     *logrus.Entry

	mu sync.Mutex
}

// collect pulls every configured source for the week starting at
// weekStart. Per-source failures come back as strings; healthy sources
// still contribute records.
func (p *pipeline) collect(ctx context.Context, weekStart time.Time) ([]normalize.Record, map[string]string) {
	recs, errs := p.fetcher.Collect(ctx, p.sources, ics.ExpandOptions{
		Location: p.loc,
		From:     weekStart,
		To:       weekStart.AddDate(0, 0, 7),
	})

	srcErrs := make(map[string]string, len(errs))
	for id, err := range errs {
		srcErrs[id] = err.Error()
	}

	if p.tasks != nil {
		taskRecs, err := p.tasks.Fetch(ctx)
		if err != nil {
			p.log.WithError(err).Error("task fetch failed")
			srcErrs["ticktick"] = err.Error()
		} else {
			recs = append(recs, taskRecs...)
		}
	}
	return recs, srcErrs
}

// Items implements web.Provider.
func (p *pipeline) Items(ctx context.Context) (web.ItemsResult, error) {
	now := time.Now().In(p.loc)
	weekStart := weekview.WeekStart(now, p.loc)
	recs, srcErrs := p.collect(ctx, weekStart)
	return web.ItemsResult{
		WeekStart:    weekStart,
		Items:        p.gen.Items(recs, weekStart),
		SourceErrors: srcErrs,
		FetchedAt:    now,
	}, nil
}

// refresh runs one full pass: fetch, render, publish the preview, and
// push the frame to the panel when one is attached.
func (p *pipeline) refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := time.Now()
	now := started.In(p.loc)
	weekStart := weekview.WeekStart(now, p.loc)

	recs, srcErrs := p.collect(ctx, weekStart)
	for id, msg := range srcErrs {
		p.log.WithFields(logrus.Fields{"id": id, "error": msg}).Warn("source failed this pass")
	}

	img, err := p.gen.Generate(recs, weekStart, p.cfg.Width, p.cfg.Height, now)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	if p.srv != nil {
		p.srv.SetPreview(buf.Bytes())
	}

	if p.panel != nil {
		frame, err := convert.Pack(img)
		if err != nil {
			return fmt.Errorf("pack frame: %w", err)
		}
		if err := p.panel.Display(ctx, frame); err != nil {
			return fmt.Errorf("display: %w", err)
		}
		if err := p.panel.Sleep(); err != nil {
			p.log.WithError(err).Warn("panel sleep failed")
		}
	}

	p.log.WithFields(logrus.Fields{
		"records":  len(recs),
		"duration": time.Since(started).Round(time.Millisecond).String(),
	}).Info("refresh pass complete")
	return nil
}

// renderToFile runs the fetch and render stages only and writes the
// result as PNG, for checking a config without hardware.
func (p *pipeline) renderToFile(ctx context.Context, path string) error {
	now := time.Now().In(p.loc)
	weekStart := weekview.WeekStart(now, p.loc)

	recs, srcErrs := p.collect(ctx, weekStart)
	for id, msg := range srcErrs {
		p.log.WithFields(logrus.Fields{"id": id, "error": msg}).Warn("source failed")
	}

	img, err := p.gen.Generate(recs, weekStart, p.cfg.Width, p.cfg.Height, now)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return out.Close()
}
