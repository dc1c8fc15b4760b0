// Command designgen runs design analyses from the command line. It reads a
// prompt (and optionally a reference image), streams the answer from the
// chosen provider and prints the validated document as JSON.
//
// Extra positional arguments are prompt files analyzed as a batch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"figmento/internal/analysis"
	designcache "figmento/internal/cache/design"
	"figmento/internal/config"
	"figmento/internal/design"
	"figmento/internal/executor"
	"figmento/internal/failure"
	"figmento/internal/metric"
	"figmento/internal/provider"
	"figmento/internal/safeio"
	"figmento/internal/util/jsonutil"
)

const defaultSystem = `You are a visual designer. Answer with a single JSON object describing the design:
{"width":number,"height":number,"backgroundColor":"#RRGGBB","elements":[...]}.
Each element has type, name, width, height, optional x/y, fills, text, autoLayout and children.`

type job struct {
	name  string
	input provider.Input
}

func main() {
	providerID := flag.String("provider", "gemini", "provider id: anthropic|openai|gemini (aliases: claude, gpt, google)")
	prompt := flag.String("prompt", "", "prompt text")
	inputPath := flag.String("input", "", "file containing the prompt")
	systemPath := flag.String("system", "", "file containing the system prompt")
	imagePath := flag.String("image", "", "optional reference image")
	out := flag.String("out", "", "output file (single run) or directory (batch); stdout when empty")
	concurrency := flag.Int("concurrency", 2, "parallel requests in batch mode")
	root := flag.String("root", ".", "directory that input files must live under")
	envFile := flag.String("env", ".env", "dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fatal(err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	credential, err := cfg.APIKey(*providerID)
	if err != nil {
		fatal(err)
	}
	inputs, err := safeio.New(*root, 0)
	if err != nil {
		fatal(err)
	}
	log.Debug("reading inputs", "root", inputs.Root())
	jobs, err := collectJobs(inputs, *prompt, *inputPath, *systemPath, *imagePath, flag.Args())
	if err != nil {
		fatal(err)
	}

	client, err := executor.NewHTTPClient(executor.DefaultClientConfig())
	if err != nil {
		fatal(err)
	}
	metrics, err := metric.New(prometheus.NewRegistry())
	if err != nil {
		fatal(err)
	}
	registry := provider.DefaultRegistry(cfg.Settings())
	adapter, err := registry.Get(*providerID)
	if err != nil {
		fatal(err)
	}
	analyzer := analysis.New(analysis.Options{
		Client:         client,
		Registry:       registry,
		Metrics:        metrics,
		Logger:         log,
		MaxAttempts:    cfg.Request.MaxAttempts,
		AttemptTimeout: cfg.Request.AttemptTimeout,
		BaseDelay:      cfg.Request.RetryBaseDelay,
		Progress:       cfg.Progress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pid := adapter.ID()
	settings := cacheSettings(adapter)
	cache := designcache.New(cfg.Cache.Size, cfg.Cache.TTL)
	var (
		mu      sync.Mutex
		results = make(map[string]design.Document, len(jobs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, *concurrency))
	for _, j := range jobs {
		g.Go(func() error {
			fp := designcache.Fingerprint(j.input, pid, settings)
			doc, ok := cache.Get(fp)
			if !ok {
				res, err := analyzer.Analyze(gctx, j.input, *providerID, credential, func(pct int, msg string) {
					fmt.Fprintf(os.Stderr, "[%3d%%] %s: %s\n", pct, j.name, msg)
				})
				if err != nil {
					return fmt.Errorf("%s: %w", j.name, err)
				}
				for _, w := range res.Warnings {
					log.Warn("analysis warning", "job", j.name, "warning", w.String())
				}
				doc = res.Document
				cache.Put(fp, doc)
			}
			mu.Lock()
			results[j.name] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fatal(err)
	}
	hits, misses, _ := cache.Stats()
	log.Debug("batch complete", "jobs", len(jobs), "cache_hits", hits, "cache_misses", misses)

	if err := writeResults(results, jobs, *out); err != nil {
		fatal(err)
	}
}

// cacheSettings keys the cache on the model the adapter will actually
// call, which may be a built-in default.
func cacheSettings(a provider.Adapter) designcache.Settings {
	s := a.Settings()
	return designcache.Settings{Model: s.Model, MaxTokens: s.MaxTokens}
}

func collectJobs(inputs *safeio.Inputs, prompt, inputPath, systemPath, imagePath string, files []string) ([]job, error) {
	system := defaultSystem
	if systemPath != "" {
		b, err := inputs.ReadFile(systemPath)
		if err != nil {
			return nil, err
		}
		system = string(b)
	}
	var image *provider.Image
	if imagePath != "" {
		b, err := inputs.ReadFile(imagePath)
		if err != nil {
			return nil, err
		}
		image = &provider.Image{MIMEType: http.DetectContentType(b), Data: b}
	}

	var jobs []job
	taken := map[string]int{}
	add := func(name, text string) {
		jobs = append(jobs, job{name: uniqueName(taken, name), input: provider.Input{System: system, Prompt: text, Image: image}})
	}
	if strings.TrimSpace(prompt) != "" {
		add("prompt", prompt)
	}
	for _, path := range append(nonEmpty(inputPath), files...) {
		b, err := inputs.ReadFile(path)
		if err != nil {
			return nil, err
		}
		add(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), string(b))
	}
	if len(jobs) == 0 {
		return nil, errors.New("nothing to analyze: pass -prompt, -input or prompt files")
	}
	return jobs, nil
}

func writeResults(results map[string]design.Document, jobs []job, out string) error {
	if len(jobs) == 1 {
		b, err := jsonutil.MarshalNoEscapeIndent(results[jobs[0].name], "", "  ")
		if err != nil {
			return err
		}
		if out == "" {
			_, err = fmt.Println(string(b))
			return err
		}
		return os.WriteFile(out, append(b, '\n'), 0o644)
	}
	if out == "" {
		out = "."
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	for _, j := range jobs {
		b, err := jsonutil.MarshalNoEscapeIndent(results[j.name], "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(out, j.name+".json"), append(b, '\n'), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// uniqueName suffixes repeated names (x, x-2, x-3) so batch results and
// output files never collide.
func uniqueName(taken map[string]int, name string) string {
	for {
		taken[name]++
		n := taken[name]
		if n == 1 {
			return name
		}
		candidate := fmt.Sprintf("%s-%d", name, n)
		if taken[candidate] == 0 {
			taken[candidate] = 1
			return candidate
		}
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func fatal(err error) {
	var fe *failure.Error
	if errors.As(err, &fe) && fe.Kind != "" {
		fmt.Fprintf(os.Stderr, "designgen: %s: %v\n", fe.Kind, err)
	} else {
		fmt.Fprintf(os.Stderr, "designgen: %v\n", err)
	}
	os.Exit(1)
}
