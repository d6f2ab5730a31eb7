package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fomm/internal/config"
	"fomm/internal/connectors"
	"fomm/internal/listener"
	"fomm/internal/logging"
	"fomm/internal/pipeline"
	"fomm/internal/server"
	"fomm/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", cfg.OutputDir, "output directory")
		encoding := fs.String("encoding", cfg.CSVEncoding, "utf-8|windows-1252")
		xlsx := fs.Bool("xlsx", cfg.ExportXLSX, "also write both reports to one workbook")
		_ = fs.Parse(os.Args[2:])
		if fs.NArg() == 0 {
			must(fmt.Errorf("at least one input file or directory is required"))
		}
		cfg.CSVEncoding = *encoding
		cfg.ExportXLSX = *xlsx

		files, err := pipeline.LoadInputFiles(fs.Args())
		must(err)
		svc := pipeline.NewProcessingService(db, cfg, logger)
		run, err := svc.ProcessFiles(pipeline.SourceCLI, nil, files)
		must(err)
		for _, o := range run.Skipped() {
			fmt.Printf("skipped file=%s sheet=%s reason=%s %s\n", o.File, o.Sheet, o.Reason, o.Detail)
		}
		summary, err := pipeline.ExportReports(run.Packed, run.Deviations, *out, svc.ExportOptions())
		must(err)
		printSummary(run.RunID, summary)
	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.Int("run", 0, "run id")
		out := fs.String("out", cfg.OutputDir, "output directory")
		_ = fs.Parse(os.Args[2:])
		if *runID == 0 {
			must(fmt.Errorf("--run is required"))
		}
		svc := pipeline.NewProcessingService(db, cfg, logger)
		summary, err := svc.ExportRun(*runID, *out)
		must(err)
		printSummary(*runID, summary)
	case "runs":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(os.Args[2:])
		runs, err := db.ListRuns(*limit)
		must(err)
		for _, r := range runs {
			email := "-"
			if r.EmailID != nil {
				email = fmt.Sprint(*r.EmailID)
			}
			fmt.Printf("%d\t%s\t%s\temail=%s\tfiles=%d\tpacked=%d\tdeviations=%d\n", r.ID, r.CreatedAt, r.Source, email, r.Files, r.PackedRows, r.DeviationRows)
		}
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := connectors.New(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
		result, err := fetch.FetchAndStore(context.Background(), *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d\n", *provider, result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, cfg, logger)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(connectors.NormalizeProvider(*provider), *messageID)
			must(err)
			fmt.Printf("processed email id=%d run=%d files=%d packed=%d deviations=%d\n", res.EmailID, res.RunID, res.Files, res.Packed, res.Deviations)
			return
		}
		processedEmails, processedRows, err := processor.ProcessPending(*batch, connectors.NormalizeProvider(*provider))
		must(err)
		fmt.Printf("processed pending emails=%d rows=%d\n", processedEmails, processedRows)
	case "mail:listen":
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		must(listener.NewService(db, cfg, logger).Run(ctx))
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		cfg.HTTPAddr = *addr
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		must(server.New(db, cfg, logger).Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func printSummary(runID int, s pipeline.ExportSummary) {
	fmt.Printf("run %d\n", runID)
	for _, line := range []struct{ path, msg string }{
		{s.PackedPath, s.PackedMessage},
		{s.DeviationsPath, s.DeviationsMessage},
	} {
		if line.path != "" {
			fmt.Printf("  wrote %s\n", line.path)
		} else {
			fmt.Printf("  %s\n", line.msg)
		}
	}
	if s.XLSXPath != "" {
		fmt.Printf("  wrote %s\n", s.XLSXPath)
	}
}

func usage() {
	fmt.Println("usage: fomm <command>")
	fmt.Println("commands:")
	fmt.Println("  run [--out=./out] [--encoding=utf-8|windows-1252] [--xlsx] FILE_OR_DIR...")
	fmt.Println("  export --run=1 [--out=./out]")
	fmt.Println("  runs [--limit=20]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  serve [--addr=:8080]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
