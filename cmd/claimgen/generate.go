package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pgendreau/aavegotchi-ptd/pkg/amount"
	"github.com/pgendreau/aavegotchi-ptd/pkg/distribution"
	"github.com/pgendreau/aavegotchi-ptd/pkg/document"
	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence"
	"github.com/pgendreau/aavegotchi-ptd/pkg/source"
	"github.com/pgendreau/aavegotchi-ptd/pkg/verifier"
)

func generateCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.ValidateGenerate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	// both were checked by ValidateGenerate
	unit, _ := amount.ParseUnit(cfg.Unit)
	format, _ := source.ParseFormat(cfg.Input.Format)

	rows, err := source.Load(cfg.Input.Path, source.Options{
		Format:        format,
		AddressColumn: cfg.Input.AddressColumn,
		AmountColumn:  cfg.Input.AmountColumn,
	})
	if err != nil {
		l.Sugar().Errorw("Failed to load claims table", "input", cfg.Input.Path, "error", err)
		return err
	}

	compiler := distribution.NewCompiler(distribution.Options{
		Unit:     unit,
		Decimals: cfg.Decimals,
		Workers:  cfg.Workers,
	}, l)
	result, err := compiler.Compile(rows)
	if err != nil {
		l.Sugar().Errorw("Failed to compile claims", "input", cfg.Input.Path, "error", err)
		return err
	}
	doc := result.Document

	report, err := verifier.VerifyDocument(doc)
	if err != nil {
		return fmt.Errorf("compiled document failed verification: %w", err)
	}
	if !report.OK() {
		return fmt.Errorf("compiled document failed verification for %d accounts", len(report.Failures))
	}

	// Store before publishing so a conflicting round id never leaves a published document behind.
	store, err := openStore(cfg, l)
	if err != nil {
		return err
	}
	var round *persistence.RoundRecord
	if store != nil {
		defer func() { _ = store.Close() }()

		round, err = persistence.NewRoundRecord(cfg.RoundID, cfg.Input.Path, doc)
		if err != nil {
			return err
		}
		if err := store.SaveRound(round); err != nil {
			l.Sugar().Errorw("Failed to save round", "round_id", round.RoundID, "error", err)
			return err
		}
	}

	sink, err := document.NewSink(c.Context, cfg.Output.Document, cfg.AWSRegion, l)
	if err != nil {
		return err
	}
	if err := document.WriteDocument(c.Context, sink, doc); err != nil {
		l.Sugar().Errorw("Failed to write document", "output", sink.String(), "error", err)
		return err
	}
	if cfg.Output.Audit != "" {
		if err := document.WriteAudit(cfg.Output.Audit, result.Audit); err != nil {
			return err
		}
	}

	l.Sugar().Infow("Published commitment document",
		"root", doc.Root.Hex(),
		"output", sink.String(),
		"audit_output", cfg.Output.Audit,
	)

	w := c.App.Writer
	fmt.Fprintln(w, "merkleRoot:", doc.Root.Hex())
	fmt.Fprintln(w, "input rows:", doc.Stats.InputRows)
	fmt.Fprintln(w, "included wallets:", doc.Stats.IncludedWallets)
	fmt.Fprintln(w, "skipped zero-amount wallets:", doc.Stats.SkippedZeroAmountWallets)
	fmt.Fprintln(w, "total amount:", doc.Stats.TotalAmount)
	fmt.Fprintln(w, "wrote:", sink.String())
	if round != nil {
		fmt.Fprintln(w, "round:", round.RoundID)
	}
	return nil
}
