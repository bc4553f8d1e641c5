// Command lexpdf processes legal PDFs from the command line:
//
//	lexpdf [-config lexpdf.yaml] [-case ID] [-system PJE] file.pdf [file2.pdf ...]
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lexpdf/contextstore"
	"github.com/hazyhaar/lexpdf/dbopen"
	"github.com/hazyhaar/lexpdf/pipeline"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	caseID := flag.String("case", "", "case identifier (single file only; default: file stem)")
	system := flag.String("system", "", "judicial system code, skips auto-detection (PJE, ESAJ, ...)")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		log.Fatalf("usage: lexpdf [-config lexpdf.yaml] [-case ID] [-system PJE] file.pdf [file2.pdf ...]")
	}
	if *caseID != "" && len(paths) > 1 {
		log.Fatalf("-case applies to a single file, got %d", len(paths))
	}

	cfg := pipeline.DefaultConfig()
	if *cfgPath != "" {
		var err error
		cfg, err = pipeline.LoadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(contextstore.Schema))
	if err != nil {
		log.Fatalf("context store: %v", err)
	}
	defer db.Close()

	p, err := pipeline.New(cfg, db, logger)
	if err != nil {
		log.Fatalf("init pipeline: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	jobs := make([]pipeline.Job, len(paths))
	for i, path := range paths {
		jobs[i] = pipeline.Job{Path: path, CaseID: *caseID, SystemCode: *system}
	}

	failed := 0
	for _, br := range p.ProcessBatch(ctx, jobs) {
		if br.Err != nil {
			logger.Error("document failed", "path", br.Path, "error", br.Err)
			failed++
			continue
		}
		logger.Info("document done",
			"path", br.Path,
			"case", br.Report.CaseID,
			"system", br.Report.System,
			"sections", len(br.Report.Sections),
			"confidence", br.Report.MeanConfidence,
			"output", br.Report.OutputDir)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
