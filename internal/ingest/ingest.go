// Package ingest reads a merchant population from CSV and hands the engine
// a validated table. Source files come out of spreadsheet exports, so cells
// may carry display formatting: "$1,234.56" currency, "23%" percentages
// (converted to fractions), and "1,234" thousands-separated integers.
//
// Ingest owns the "missing column" half of the input contract; value-range
// validation belongs to the scoring model, which never trusts this layer.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/merchrank/tier-engine/internal/model"
)

// ErrBadTable is returned for a structurally invalid source: a missing
// required column, an unparsable cell, or an empty table. The wrapped
// message names the column.
var ErrBadTable = errors.New("ingest: invalid source table")

// Required column headers. Matching is case-insensitive and ignores
// surrounding whitespace.
const (
	colName      = "brand_name"
	colTrips     = "annualized_trips"
	colBasket    = "avg_basket_size"
	colFee       = "marketplace_fee"
	colWait      = "avg_wait_minutes"
	colDefect    = "defect_rate"
	colLocations = "active_locations"
)

var requiredColumns = []string{
	colName, colTrips, colBasket, colFee, colWait, colDefect, colLocations,
}

// ReadCSV parses a population table from r. One row per account, header row
// required. Returns an ErrBadTable-wrapped error naming the first offending
// column; it never fills, coerces, or drops bad cells.
func ReadCSV(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header row: %v", ErrBadTable, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadTable, col)
		}
	}

	var accounts []model.Account
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadTable, line, err)
		}

		cell := func(col string) string { return strings.TrimSpace(record[idx[col]]) }

		a := model.Account{Name: cell(colName)}
		if a.Name == "" {
			return nil, fmt.Errorf("%w: column %q empty at line %d", ErrBadTable, colName, line)
		}
		if a.AnnualTrips, err = parseNumber(cell(colTrips)); err != nil {
			return nil, cellErr(colTrips, line, err)
		}
		if a.BasketSize, err = parseCurrency(cell(colBasket)); err != nil {
			return nil, cellErr(colBasket, line, err)
		}
		if a.FeeRate, err = parsePercent(cell(colFee)); err != nil {
			return nil, cellErr(colFee, line, err)
		}
		wait, err := parseNumber(cell(colWait))
		if err != nil {
			return nil, cellErr(colWait, line, err)
		}
		a.WaitMinutes = wait.InexactFloat64()
		defect, err := parsePercent(cell(colDefect))
		if err != nil {
			return nil, cellErr(colDefect, line, err)
		}
		a.DefectRate = defect.InexactFloat64()
		locs, err := parseNumber(cell(colLocations))
		if err != nil {
			return nil, cellErr(colLocations, line, err)
		}
		if !locs.Equal(locs.Truncate(0)) {
			return nil, cellErr(colLocations, line, errors.New("not an integer"))
		}
		a.ActiveLocations = int(locs.IntPart())

		accounts = append(accounts, a)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrBadTable)
	}
	return accounts, nil
}

func cellErr(col string, line int, err error) error {
	return fmt.Errorf("%w: column %q at line %d: %v", ErrBadTable, col, line, err)
}

// parseNumber handles plain numerics with optional thousands separators:
// "1,234" → 1234.
func parseNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

// parseCurrency strips a leading $ and thousands separators:
// "$1,234.56" → 1234.56.
func parseCurrency(s string) (decimal.Decimal, error) {
	return parseNumber(strings.TrimPrefix(s, "$"))
}

// parsePercent converts "23%" (or "23.5 %") to the fraction 0.23; a bare
// number without the % sign is taken as an already-converted fraction.
func parsePercent(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := parseNumber(trimmed)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if strings.HasSuffix(strings.TrimSpace(s), "%") {
		return v.Div(decimal.NewFromInt(100)), nil
	}
	return v, nil
}
