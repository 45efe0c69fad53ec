// Package source reads claims tables into ordered input rows.
package source

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

const (
	DefaultAddressColumn = "wallet"
	DefaultAmountColumn  = "rewardTotal"
)

type Format string

func (f Format) String() string {
	return string(f)
}

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts csv, json or auto (empty means auto).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported input format %q: expected csv, json or auto", s)
	}
}

type Options struct {
	Format        Format
	AddressColumn string
	AmountColumn  string
}

func DefaultOptions() Options {
	return Options{
		Format:        FormatAuto,
		AddressColumn: DefaultAddressColumn,
		AmountColumn:  DefaultAmountColumn,
	}
}

// Load reads a claims table from path. With FormatAuto the format is taken from
// the file extension, defaulting to CSV.
func Load(path string, opts Options) ([]types.InputRow, error) {
	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatCSV
		if strings.EqualFold(filepath.Ext(path), ".json") {
			format = FormatJSON
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open claims table %s", path)
	}
	defer func() { _ = f.Close() }()

	var rows []types.InputRow
	switch format {
	case FormatCSV:
		rows, err = ReadCSV(f, opts.AddressColumn, opts.AmountColumn)
	case FormatJSON:
		rows, err = ReadJSONMapping(f)
	default:
		return nil, fmt.Errorf("unsupported input format %q", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read claims table %s", path)
	}
	return rows, nil
}

// ReadCSV reads a table with a header row. Only the address and amount columns are
// interpreted; every column is kept as row metadata. Rows are numbered from 1
// starting at the first data row.
func ReadCSV(r io.Reader, addressColumn, amountColumn string) ([]types.InputRow, error) {
	if addressColumn == "" {
		addressColumn = DefaultAddressColumn
	}
	if amountColumn == "" {
		amountColumn = DefaultAmountColumn
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: input CSV appears to have no header row", types.ErrEmptyInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	addressIdx, amountIdx := -1, -1
	for i, name := range header {
		switch name {
		case addressColumn:
			addressIdx = i
		case amountColumn:
			amountIdx = i
		}
	}
	if addressIdx < 0 {
		return nil, fmt.Errorf("missing required column %q in CSV header", addressColumn)
	}
	if amountIdx < 0 {
		return nil, fmt.Errorf("missing required column %q in CSV header", amountColumn)
	}

	var rows []types.InputRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(rows)+1, err)
		}

		rowNum := len(rows) + 1
		metadata := make(map[string]string, len(header))
		for i, name := range header {
			metadata[name] = record[i]
		}

		row := types.InputRow{
			Row:      rowNum,
			Account:  strings.TrimSpace(record[addressIdx]),
			Amount:   strings.TrimSpace(record[amountIdx]),
			Metadata: metadata,
		}
		if row.Account == "" {
			return nil, &types.RowError{Row: rowNum, Err: fmt.Errorf("%w: empty %s", types.ErrInvalidAddress, addressColumn)}
		}
		if row.Amount == "" {
			return nil, &types.RowError{Row: rowNum, Account: row.Account, Err: fmt.Errorf("%w: empty %s", types.ErrInvalidAmount, amountColumn)}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: input CSV has no data rows", types.ErrEmptyInput)
	}
	return rows, nil
}

// ReadJSONMapping reads {"<account>": "<amount>", ...}. Amounts may be JSON strings
// or integer literals; they are kept verbatim so no precision is lost.
// The object is walked key by key so a repeated account is reported instead of
// silently overwriting the earlier amount.
func ReadJSONMapping(r io.Reader) ([]types.InputRow, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	if err := expectDelim(decoder, '{'); err != nil {
		return nil, fmt.Errorf("failed to decode JSON mapping: %w", err)
	}

	mapping := make(map[string]string)
	seen := make(map[string]int)
	for entry := 1; decoder.More(); entry++ {
		tok, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode JSON mapping: %w", err)
		}
		account, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("failed to decode JSON mapping: unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return nil, fmt.Errorf("failed to decode JSON mapping: %w", err)
		}
		if first, dup := seen[account]; dup {
			return nil, &types.RowError{
				Row:     entry,
				Account: account,
				Err:     fmt.Errorf("%w: also at entry %d", types.ErrDuplicateAccount, first),
			}
		}
		seen[account] = entry

		amt, err := jsonAmount(value)
		if err != nil {
			return nil, &types.RowError{Row: entry, Account: account, Err: err}
		}
		mapping[account] = amt
	}
	if err := expectDelim(decoder, '}'); err != nil {
		return nil, fmt.Errorf("failed to decode JSON mapping: %w", err)
	}
	return FromMapping(mapping), nil
}

func expectDelim(decoder *json.Decoder, want json.Delim) error {
	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func jsonAmount(value json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(value, &n); err != nil {
		return "", fmt.Errorf("%w: amount must be a string or number", types.ErrInvalidAmount)
	}
	return n.String(), nil
}

// FromMapping turns an account -> amount mapping produced by a reward aggregation
// job into input rows. Maps carry no order, so rows are sorted by lower-cased
// account to keep indices deterministic.
func FromMapping(mapping map[string]string) []types.InputRow {
	accounts := make([]string, 0, len(mapping))
	for account := range mapping {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		a := strings.ToLower(strings.TrimSpace(accounts[i]))
		b := strings.ToLower(strings.TrimSpace(accounts[j]))
		if a == b {
			return accounts[i] < accounts[j]
		}
		return a < b
	})

	rows := make([]types.InputRow, len(accounts))
	for i, account := range accounts {
		rows[i] = types.InputRow{
			Row:     i + 1,
			Account: account,
			Amount:  mapping[account],
			Metadata: map[string]string{
				DefaultAddressColumn: account,
				DefaultAmountColumn:  mapping[account],
			},
		}
	}
	return rows
}
