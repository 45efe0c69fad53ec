package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pgendreau/aavegotchi-ptd/pkg/document"
	"github.com/pgendreau/aavegotchi-ptd/pkg/merkle"
	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
	"github.com/pgendreau/aavegotchi-ptd/pkg/verifier"
)

func readDocumentArg(c *cli.Context) (*types.CommitmentDocument, error) {
	if c.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one document argument")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	l, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Sync() }()

	sink, err := document.NewSink(c.Context, c.Args().First(), cfg.AWSRegion, l)
	if err != nil {
		return nil, err
	}
	return document.ReadDocument(c.Context, sink)
}

func verifyCommand(c *cli.Context) error {
	doc, err := readDocumentArg(c)
	if err != nil {
		return err
	}
	w := c.App.Writer

	if c.IsSet("account") {
		account, err := merkle.ParseAccount(c.String("account"))
		if err != nil {
			return err
		}
		claim, ok := doc.ClaimFor(account)
		if !ok {
			return fmt.Errorf("%s has no claim in this document", account.Hex())
		}
		amt, err := claim.AmountInt()
		if err != nil {
			return err
		}
		valid, err := verifier.VerifyClaim(doc.Root, account, amt, claim.Proof)
		if err != nil {
			return err
		}
		if !valid {
			return fmt.Errorf("proof for %s does not reproduce root %s", account.Hex(), doc.Root.Hex())
		}
		fmt.Fprintf(w, "OK %s index=%d amount=%s root=%s\n", account.Hex(), claim.Index, claim.Amount, doc.Root.Hex())
		return nil
	}

	report, err := verifier.VerifyDocument(doc)
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d proofs do not reproduce root %s: %s",
			len(report.Failures), report.Checked, report.Root.Hex(), strings.Join(report.Failures, ", "))
	}
	fmt.Fprintf(w, "OK %d claims verified against %s\n", report.Checked, report.Root.Hex())
	return nil
}

func proofCommand(c *cli.Context) error {
	doc, err := readDocumentArg(c)
	if err != nil {
		return err
	}

	account, err := merkle.ParseAccount(c.String("account"))
	if err != nil {
		return err
	}
	claim, ok := doc.ClaimFor(account)
	if !ok {
		return fmt.Errorf("%s has no claim in this document", account.Hex())
	}

	w := c.App.Writer
	fmt.Fprintln(w, "root:", doc.Root.Hex())
	fmt.Fprintln(w, "account:", account.Hex())
	fmt.Fprintln(w, "index:", claim.Index)
	fmt.Fprintln(w, "amount:", claim.Amount)
	if claim.AmountDisplay != "" {
		fmt.Fprintln(w, "amountDisplay:", claim.AmountDisplay)
	}
	proof := make([]string, len(claim.Proof))
	for i, p := range claim.Proof {
		proof[i] = p.Hex()
	}
	fmt.Fprintf(w, "proof: [%s]\n", strings.Join(proof, ","))
	return nil
}
