package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lmittmann/tint"

	imagemod "github.com/anatolykoptev/go-imagemod"
)

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout, stderr io.Writer) int {
	fset := flag.NewFlagSet("imagemod", flag.ContinueOnError)
	fset.SetOutput(stderr)
	configPath := fset.String("config", "", "policy YAML file (defaults applied when empty)")
	allowPath := fset.String("allowlist", "data/phash_allowlist.txt", "perceptual-hash allowlist file")
	blockPath := fset.String("blocklist", "data/phash_blocklist.txt", "perceptual-hash blocklist file")
	textPath := fset.String("text-blocklist", "data/text_blocklist.txt", "OCR/metadata text blocklist file")
	noAPIs := fset.Bool("no-apis", false, "skip remote API engines")
	recursive := fset.Bool("recursive", false, "recurse when input is a directory")
	sampleFrames := fset.Int("sample-frames", 0, "override max frames sampled per animated input")
	jsonOut := fset.String("json", "", "write report(s) to a JSON file")
	verbose := fset.Bool("verbose", false, "debug logging")
	if err := fset.Parse(args[1:]); err != nil {
		return 2
	}

	setupLogging(stderr, *verbose)

	if fset.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: imagemod [flags] <path|dir|url>")
		fset.Usage()
		return 2
	}
	input := fset.Arg(0)

	pol := imagemod.DefaultPolicy()
	if *configPath != "" {
		var err error
		pol, err = imagemod.LoadPolicy(*configPath)
		if err != nil {
			fmt.Fprintln(stderr, "config error:", err)
			return 1
		}
	}
	if *sampleFrames > 0 {
		pol.SampleFrames = *sampleFrames
	}

	cfg, err := buildConfig(pol, *allowPath, *blockPath, *textPath, *noAPIs)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	inputs, err := collectInputs(input, *recursive)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(inputs) == 0 {
		fmt.Fprintln(stderr, "no image inputs found under", input)
		return 1
	}

	reports := cfg.ScanBatch(context.Background(), inputs)
	for _, rep := range reports {
		printReport(stdout, rep, pol.VerboseScores)
	}

	if *jsonOut != "" {
		data, err := imagemod.MarshalReports(reports, pol.VerboseScores)
		if err == nil {
			err = os.WriteFile(*jsonOut, data, 0o644)
		}
		if err != nil {
			fmt.Fprintln(stderr, "write json report:", err)
			return 1
		}
	}

	if imagemod.AllOK(reports) {
		return 0
	}
	return 2
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

// buildConfig assembles the pipeline from CLI inputs. Store read failures are
// warnings, not fatal: the gate falls back to no-decision.
func buildConfig(pol imagemod.Policy, allowPath, blockPath, textPath string, noAPIs bool) (*imagemod.Config, error) {
	allow, err := imagemod.LoadHashStore(allowPath)
	if err != nil {
		slog.Warn("allowlist unavailable, gate falls open", "error", err.Error())
		allow = imagemod.NewHashStore(allowPath)
	}
	block, err := imagemod.LoadHashStore(blockPath)
	if err != nil {
		slog.Warn("blocklist unavailable, gate falls open", "error", err.Error())
		block = imagemod.NewHashStore(blockPath)
	}
	patterns, err := imagemod.LoadPatternSet(textPath)
	if err != nil {
		return nil, fmt.Errorf("load text blocklist: %w", err)
	}

	// Credentials are read here, at construction time; pipeline components
	// never touch the environment themselves.
	registry := imagemod.NewRegistry(
		imagemod.NewOCREngine(nil, patterns, pol.OCR),
		imagemod.NewMetaTextEngine(patterns),
		&imagemod.OpenAIModerationEngine{APIKey: os.Getenv("OPENAI_API_KEY")},
		&imagemod.SightengineEngine{
			APIUser:   os.Getenv("SIGHTENGINE_USER"),
			APISecret: os.Getenv("SIGHTENGINE_SECRET"),
		},
	)

	cfg := &imagemod.Config{
		Policy:    pol,
		Allowlist: allow,
		Blocklist: block,
		Registry:  registry,
		Patterns:  patterns,
	}
	if noAPIs {
		cfg.Skip = map[string]string{
			"openai-moderation": "excluded by --no-apis",
			"sightengine":       "excluded by --no-apis",
		}
	}
	return cfg, nil
}

func collectInputs(input string, recursive bool) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		// URLs and nonexistent paths go straight to the pipeline; the
		// loader reports decode failures per input.
		return []string{input}, nil
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	var out []string
	if recursive {
		err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && imagemod.IsImageFile(path) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", input, err)
		}
	} else {
		entries, err := os.ReadDir(input)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", input, err)
		}
		for _, e := range entries {
			if !e.IsDir() && imagemod.IsImageFile(e.Name()) {
				out = append(out, filepath.Join(input, e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func printReport(w io.Writer, rep imagemod.Report, verbose bool) {
	fmt.Fprintln(w, "======================================================================")
	fmt.Fprintln(w, rep.Name)
	fmt.Fprintf(w, "FINAL: %s\n", rep.Verdict.Label)
	for _, r := range rep.Verdict.Reasons {
		fmt.Fprintf(w, " - %s\n", r)
	}
	if rep.AutoLearn != "" {
		fmt.Fprintf(w, " - %s\n", rep.AutoLearn)
	}

	names := make([]string, 0, len(rep.Verdict.Engines))
	for name := range rep.Verdict.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		er := rep.Verdict.Engines[name]
		msg := er.Detail
		if er.Status == imagemod.StatusOK && verbose {
			msg = formatScores(er.Scores)
		}
		fmt.Fprintf(w, "   [%-8s] %-18s (%dms) %s\n", er.Status, name, er.Took.Milliseconds(), msg)
	}
}

func formatScores(scores map[string]float64) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%.2f", k, scores[k])
	}
	return out
}
