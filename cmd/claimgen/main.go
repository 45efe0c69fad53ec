package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pgendreau/aavegotchi-ptd/pkg/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "claimgen",
		Usage: "Compile reward tables into Merkle claim documents",
		Description: `Turns a wallet -> reward table into the Merkle root published to the claim
contract and the per-wallet proofs used to claim.

Leaves are keccak256(keccak256(abi.encode(address, uint256))) and nodes hash
sorted pairs, matching OpenZeppelin MerkleProof.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file",
				EnvVars: []string{config.EnvConfigFile},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvVerbose},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write JSON logs to this file, with rotation",
				EnvVars: []string{config.EnvLogFile},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region for s3:// documents",
				EnvVars: []string{config.EnvAWSRegion},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Round store: none, memory, badger or redis",
				EnvVars: []string{config.EnvStoreType},
			},
			&cli.StringFlag{
				Name:    "badger-path",
				Usage:   "Data directory of the badger round store",
				EnvVars: []string{config.EnvBadgerPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis host:port of the redis round store",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every redis key",
				EnvVars: []string{config.EnvRedisKeyPrefix},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Compile a claims table into a commitment document",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "CSV or JSON claims table",
						EnvVars: []string{config.EnvInput},
					},
					&cli.StringFlag{
						Name:    "format",
						Usage:   "Input format: csv, json or auto",
						EnvVars: []string{config.EnvInputFormat},
					},
					&cli.StringFlag{
						Name:    "address-column",
						Usage:   "CSV column holding the wallet",
						EnvVars: []string{config.EnvAddressColumn},
					},
					&cli.StringFlag{
						Name:    "amount-column",
						Usage:   "CSV column holding the reward",
						EnvVars: []string{config.EnvAmountColumn},
					},
					&cli.StringFlag{
						Name:    "unit",
						Usage:   "Unit of the input amounts: minor (wei) or display (eth)",
						EnvVars: []string{config.EnvUnit},
					},
					&cli.UintFlag{
						Name:    "decimals",
						Usage:   "Token decimals used by the display unit",
						EnvVars: []string{config.EnvDecimals},
					},
					&cli.IntFlag{
						Name:    "workers",
						Usage:   "Parallel leaf hashing workers",
						EnvVars: []string{config.EnvWorkers},
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Document destination: a file path or s3://bucket/key",
						EnvVars: []string{config.EnvOutput},
					},
					&cli.StringFlag{
						Name:    "audit-output",
						Usage:   "Write source row metadata of every claim to this file",
						EnvVars: []string{config.EnvAuditOutput},
					},
					&cli.StringFlag{
						Name:    "round-id",
						Usage:   "Round id in the store (random when empty)",
						EnvVars: []string{config.EnvRoundID},
					},
				},
				Action: generateCommand,
			},
			{
				Name:      "verify",
				Usage:     "Independently re-verify every proof of a document",
				ArgsUsage: "<document>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "account",
						Usage: "Only verify this wallet",
					},
				},
				Action: verifyCommand,
			},
			{
				Name:      "proof",
				Usage:     "Print the claim parameters of one wallet",
				ArgsUsage: "<document>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "account",
						Usage:    "Wallet to print",
						Required: true,
					},
				},
				Action: proofCommand,
			},
			{
				Name:  "rounds",
				Usage: "Inspect the round store",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List stored rounds",
						Action: roundsListCommand,
					},
					{
						Name:      "show",
						Usage:     "Print the document of a round",
						ArgsUsage: "<round-id>",
						Action:    roundsShowCommand,
					},
					{
						Name:      "delete",
						Usage:     "Delete a round",
						ArgsUsage: "<round-id>",
						Action:    roundsDeleteCommand,
					},
				},
			},
		},
	}
}
