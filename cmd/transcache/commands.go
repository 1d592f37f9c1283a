package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/unkn0wn-root/transcache"
	"github.com/unkn0wn-root/transcache/bundle"
	"github.com/unkn0wn-root/transcache/internal/config"
	"github.com/unkn0wn-root/transcache/seed"
	"github.com/unkn0wn-root/transcache/store/postgres"
)

func runMigrate(ctx context.Context, configPath string, args []string, stdout, stderr io.Writer) error {
	fs := subFlags("migrate", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Store.Driver == "postgres" {
		v, err := postgres.Migrate(cfg.Store.DSN)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "postgres schema at version %d\n", v)
		return nil
	}

	// sqlite applies pending migrations when it is opened
	a, err := setup(ctx, cfg, stderr, false)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))
	fmt.Fprintf(stdout, "sqlite schema up to date (%s)\n", cfg.Store.Path)
	return nil
}

func runGenerate(ctx context.Context, configPath string, args []string, stdout, stderr io.Writer) error {
	fs := subFlags("generate", stderr)
	count := fs.Int("count", 100000, "number of translations to generate")
	locales := fs.String("locales", "en,fr,es,de,it", "comma-separated locales")
	tags := fs.String("tags", "mobile,desktop,web", "comma-separated tags")
	batch := fs.Int("batch", seed.DefaultBatchSize, "rows per insert")
	quiet := fs.Bool("quiet", false, "suppress progress output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	locs, tgs := splitList(*locales), splitList(*tags)
	for _, l := range locs {
		if err := bundle.CheckLocale(l); err != nil {
			return err
		}
		if len(l) > 5 {
			return fmt.Errorf("locale %q is longer than 5 characters", l)
		}
	}
	for _, t := range tgs {
		if len(t) > 50 {
			return fmt.Errorf("tag %q is longer than 50 characters", t)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := setup(ctx, cfg, stderr, true)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	if !*quiet && *count > 0 {
		fmt.Fprintf(stderr, "Generating %s translations...\n", humanize.Comma(int64(*count)))
	}
	opts := seed.Options{Count: *count, Locales: locs, Tags: tgs, BatchSize: *batch}
	if !*quiet {
		opts.OnBatch = func(done, total int) {
			fmt.Fprintf(stderr, "\r  %s/%s (%d%%)", humanize.Comma(int64(done)), humanize.Comma(int64(total)), done*100/total)
			if done == total {
				fmt.Fprintln(stderr)
			}
		}
	}
	rep, err := seed.Generate(ctx, a.store, opts)
	if err != nil {
		return err
	}

	// rows bypassed the service, so every cached read is stale. Only a
	// shared cache can be reached from this process.
	if cfg.Cache.Shared {
		if err := a.svc.Invalidate(ctx); err != nil {
			a.log.Warn("cache invalidation after generate failed", transcache.Fields{"err": err})
			fmt.Fprintf(stderr, "warning: cache invalidation failed: %v\n", err)
		}
	} else if cfg.Cache.Driver != "none" {
		fmt.Fprintf(stderr, "warning: the %s cache is per process; running servers serve cached lists for up to %s and the export for up to %s\n",
			cfg.Cache.Driver, cfg.Cache.ListTTL.Duration, cfg.Cache.ExportTTL.Duration)
	}

	printReport(stdout, rep, locs, tgs)
	return nil
}

func printReport(w io.Writer, rep seed.Report, locales, tags []string) {
	fmt.Fprintf(w, "Generated %s translations in %.2f seconds\n", humanize.Comma(rep.Inserted), rep.ElapsedSeconds())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Statistics:")
	fmt.Fprintf(w, "  Total translations: %s\n", humanize.Comma(rep.Stats.Total))
	fmt.Fprintf(w, "  Unique keys:        %s\n", humanize.Comma(rep.Stats.UniqueKeys))
	fmt.Fprintln(w, "  Per locale:")
	for _, l := range locales {
		fmt.Fprintf(w, "    %s: %s\n", l, humanize.Comma(rep.Stats.PerLocale[l]))
	}
	fmt.Fprintln(w, "  Per tag:")
	for _, t := range tags {
		fmt.Fprintf(w, "    %s: %s\n", t, humanize.Comma(rep.Stats.PerTag[t]))
	}
	if rep.Stats.TableSize != "" {
		fmt.Fprintf(w, "  Table size:         %s\n", rep.Stats.TableSize)
	}
	if rep.Stats.DatabaseSize != "" {
		fmt.Fprintf(w, "  Database size:      %s\n", rep.Stats.DatabaseSize)
	}
}

func runExport(ctx context.Context, configPath string, args []string, stdout, stderr io.Writer) error {
	fs := subFlags("export", stderr)
	out := fs.String("out", "", "directory for active.<locale>.<format> files (default: JSON to stdout)")
	format := fs.String("format", bundle.FormatJSON, "message file format: json or toml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != bundle.FormatJSON && *format != bundle.FormatTOML {
		return fmt.Errorf("unknown format %q", *format)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := setup(ctx, cfg, stderr, true)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	exp, err := a.svc.Export(ctx)
	if err != nil {
		return err
	}

	if *out == "" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exp)
	}

	paths, err := bundle.Write(*out, *format, exp)
	if err != nil {
		return err
	}
	if _, err := bundle.LoadDir("en", *out); err != nil {
		fmt.Fprintf(stderr, "warning: written files do not load as a go-i18n bundle: %v\n", err)
	}
	var msgs int
	for _, m := range exp {
		msgs += len(m)
	}
	fmt.Fprintf(stdout, "wrote %d files (%s messages) to %s\n", len(paths), humanize.Comma(int64(msgs)), *out)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
