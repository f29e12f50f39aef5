// Command scan runs a one-shot username scan from the terminal, without
// the HTTP server. It prints a per-provider table and can export the raw
// results as JSON.
//
// Exit codes: 0 on success, 2 on invalid arguments, 3 when the scan
// fails or is cut short by its deadline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/social-hunt/internal/adapter/facerestore"
	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/adapter/observability"
	"github.com/fairyhunter13/social-hunt/internal/adapter/provider"
	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/adapter/repo/memory"
	"github.com/fairyhunter13/social-hunt/internal/config"
	"github.com/fairyhunter13/social-hunt/internal/domain"
	"github.com/fairyhunter13/social-hunt/internal/service/ratelimiter"
	"github.com/fairyhunter13/social-hunt/internal/usecase"
)

const (
	exitOK          = 0
	exitInvalidArgs = 2
	exitScanFailed  = 3
)

var statusMarks = map[domain.ResultStatus]string{
	domain.StatusFound:    "+",
	domain.StatusNotFound: "-",
	domain.StatusUnknown:  "?",
	domain.StatusBlocked:  "!",
	domain.StatusError:    "x",
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		username  = flag.String("username", "", "username to scan (required)")
		providers = flag.String("providers", "", "comma-separated provider subset; empty scans all")
		jsonOut   = flag.String("json", "", "write full results as JSON to this file ('-' for stdout)")
		foundOnly = flag.Bool("found-only", false, "print only found results")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "error: -username is required")
		flag.Usage()
		return exitInvalidArgs
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitInvalidArgs
	}
	if *verbose {
		cfg.AppEnv = "dev"
	}
	logger := observability.SetupLogger(cfg)
	if !*verbose {
		// Keep the table readable; logs go to the server, not the CLI.
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	slog.SetDefault(logger)
	observability.InitMetrics()

	factory, err := httpclient.New(cfg.TorProxyURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitInvalidArgs
	}
	limiter := ratelimiter.New(cfg.MaxConcurrency, cfg.HostRPS, cfg.HostBurst,
		ratelimiter.WithAcquireTimeout(cfg.AcquireTimeout))
	env := provider.Env{Client: factory, Limiter: limiter, Log: logger}

	reg := registry.New(cfg.ProvidersYAML, func(spec *registry.Spec) domain.Provider {
		return provider.NewPattern(spec, env)
	}, logger)
	reg.Register("github", func(*registry.Spec) domain.Provider { return provider.NewGitHub(env) })
	reg.Register("reddit", func(*registry.Spec) domain.Provider { return provider.NewReddit(env) })
	reg.Register("hibp", func(*registry.Spec) domain.Provider {
		return provider.NewHIBP(provider.HIBPConfig{
			APIKey:       cfg.HIBPAPIKey,
			UserAgent:    cfg.HIBPUserAgent,
			AllowHandles: cfg.HIBPAllowHandles,
		}, env)
	})
	reg.Register("breach_vip", func(*registry.Spec) domain.Provider { return provider.NewBreachVIP(env) })
	if err := reg.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitInvalidArgs
	}

	store := memory.NewJobsRepo(cfg.JobCapacity, cfg.JobTTL)
	restorer := facerestore.New(cfg.FaceRestoreURL, cfg.FaceRestoreTimeout)
	scanSvc := usecase.NewScanService(reg, store, factory, nil, restorer, usecase.ScanConfig{
		MaxConcurrency:    cfg.MaxConcurrency,
		JobDeadline:       cfg.JobDeadline,
		DhashThreshold:    cfg.DhashThreshold,
		FaceMatchDistance: cfg.FaceMatchDistance,
		AvatarMaxBytes:    cfg.AvatarMaxBytes,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts usecase.ScanOptions
	if *providers != "" {
		for _, p := range strings.Split(*providers, ",") {
			if p = strings.TrimSpace(p); p != "" {
				opts.Providers = append(opts.Providers, p)
			}
		}
	}

	jobID, err := scanSvc.Submit(ctx, *username, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitInvalidArgs
	}

	job, ok := waitForJob(ctx, scanSvc, jobID)
	if !ok {
		fmt.Fprintln(os.Stderr, "error: interrupted")
		_ = scanSvc.Cancel(jobID)
		return exitScanFailed
	}

	printTable(job, *foundOnly)

	if *jsonOut != "" {
		if err := exportJSON(*jsonOut, job); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return exitScanFailed
		}
	}

	if job.State == domain.JobFailed {
		return exitScanFailed
	}
	return exitOK
}

func waitForJob(ctx context.Context, svc *usecase.ScanService, id string) (domain.Job, bool) {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return domain.Job{}, false
		case <-ticker.C:
			job, err := svc.Get(id, -1)
			if err != nil {
				return domain.Job{}, false
			}
			if job.State.Terminal() {
				return job, true
			}
		}
	}
}

func printTable(job domain.Job, foundOnly bool) {
	fmt.Printf("scan %s: %s (%d/%d found)\n\n",
		job.Username, job.State, job.FoundCount, job.ProvidersCount)
	for _, r := range job.Results {
		if foundOnly && r.Status != domain.StatusFound {
			continue
		}
		mark := statusMarks[r.Status]
		if mark == "" {
			mark = "?"
		}
		line := fmt.Sprintf("[%s] %-16s %-10s %s", mark, r.Provider, r.Status, r.URL)
		if r.Error != "" {
			line += " (" + r.Error + ")"
		}
		fmt.Println(line)
	}
}

// exportJSON writes the full job with a correlation id so exports from
// separate runs can be cross-referenced later.
func exportJSON(path string, job domain.Job) error {
	doc := map[string]any{
		"export_id":   uuid.NewString(),
		"exported_at": time.Now().UTC().Format(time.RFC3339),
		"job":         job,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
