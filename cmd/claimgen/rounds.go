package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pgendreau/aavegotchi-ptd/pkg/document"
	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence"
)

// withStore opens the configured round store for the duration of fn.
func withStore(c *cli.Context, fn func(store persistence.IRoundStore) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	store, err := requireStore(cfg, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return fn(store)
}

func roundIDArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one round id argument")
	}
	return c.Args().First(), nil
}

func roundsListCommand(c *cli.Context) error {
	return withStore(c, func(store persistence.IRoundStore) error {
		rounds, err := store.ListRounds()
		if err != nil {
			return err
		}
		w := c.App.Writer
		if len(rounds) == 0 {
			fmt.Fprintln(w, "no rounds")
			return nil
		}
		for _, r := range rounds {
			wallets := 0
			total := ""
			if r.Document != nil {
				wallets = r.Document.Stats.IncludedWallets
				total = r.Document.Stats.TotalAmount
			}
			fmt.Fprintf(w, "%s\t%s\t%s\twallets=%d\ttotal=%s\n",
				r.RoundID,
				time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339),
				r.Root.Hex(),
				wallets,
				total,
			)
		}
		return nil
	})
}

func roundsShowCommand(c *cli.Context) error {
	id, err := roundIDArg(c)
	if err != nil {
		return err
	}
	return withStore(c, func(store persistence.IRoundStore) error {
		round, err := store.LoadRound(id)
		if err != nil {
			return err
		}
		if round == nil {
			return fmt.Errorf("round %s not found", id)
		}
		data, err := document.Marshal(round.Document)
		if err != nil {
			return err
		}
		_, err = c.App.Writer.Write(data)
		return err
	})
}

func roundsDeleteCommand(c *cli.Context) error {
	id, err := roundIDArg(c)
	if err != nil {
		return err
	}
	return withStore(c, func(store persistence.IRoundStore) error {
		if err := store.DeleteRound(id); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "deleted round", id)
		return nil
	})
}
