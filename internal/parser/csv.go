// Package parser turns a LeadSource's csv_config and a raw byte slice into
// validated RawRow records, ready for the store to insert.
package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// CSVOptions configures the streaming CSV reader, derived from a
// LeadSource's csv_config.
type CSVOptions struct {
	Delimiter rune
	HasHeader bool
	SkipRows  int
}

// StreamRows reads a CSV byte slice and sends each data row to the
// returned channel as a parsedRow: its row number and its trimmed values
// keyed by header name (col_<i> when there is no header). Errors are sent
// on the error channel. Both channels are closed
// when processing completes. row_number in the caller's domain is
// 1-based over the original file, counting header and skipped rows.
func StreamRows(ctx context.Context, data []byte, opts CSVOptions) (<-chan parsedRow, <-chan error) {
	rowCh := make(chan parsedRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		r := csv.NewReader(bytes.NewReader(data))
		if opts.Delimiter != 0 {
			r.Comma = opts.Delimiter
		}
		r.FieldsPerRecord = -1
		r.LazyQuotes = true

		lineNo := 0
		for i := 0; i < opts.SkipRows; i++ {
			if _, err := r.Read(); err != nil {
				if err == io.EOF {
					return
				}
				errCh <- eris.Wrap(err, "parser: skip row")
				return
			}
			lineNo++
		}

		var header []string
		if opts.HasHeader {
			rec, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "parser: read header")
				return
			}
			header = trimAll(rec)
			lineNo++
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "parser: context cancelled")
				return
			}
			rec, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "parser: read row")
				return
			}
			lineNo++

			fields := trimAll(rec)
			row := make(map[string]string, len(fields))
			for i, v := range fields {
				key := fmt.Sprintf("col_%d", i)
				if header != nil && i < len(header) && header[i] != "" {
					key = header[i]
				}
				row[key] = v
			}

			select {
			case rowCh <- parsedRow{rowNumber: lineNo, data: row}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "parser: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

type parsedRow struct {
	rowNumber int
	data      map[string]string
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

// ParseBatch reads every row of data per source's csv_config and returns
// a validated RawRow per data row. It never fails on a single row's
// validation; it returns an error only for a structural read failure
// (malformed CSV, context cancellation), which the caller should treat
// as a batch-level failure per spec.
func ParseBatch(ctx context.Context, batchID string, data []byte, source *model.LeadSource) ([]*model.RawRow, error) {
	delim := ','
	if source.CSVConfig.Delimiter != "" {
		delim = rune(source.CSVConfig.Delimiter[0])
	}
	opts := CSVOptions{
		Delimiter: delim,
		HasHeader: source.CSVConfig.HasHeader,
		SkipRows:  source.CSVConfig.SkipRows,
	}

	emailRe, err := compileEmailRegex(source.ValidationRules.EmailRegex)
	if err != nil {
		return nil, eris.Wrap(err, "parser: compile email regex")
	}

	rowCh, errCh := StreamRows(ctx, data, opts)

	var rows []*model.RawRow
	for pr := range rowCh {
		valid, errs := validateRow(pr.data, source.FieldMapping, source.ValidationRules.RequiredFields, emailRe)
		rows = append(rows, &model.RawRow{
			BatchID:          batchID,
			RowNumber:        pr.rowNumber,
			RawData:          pr.data,
			IsValid:          valid,
			ValidationErrors: errs,
		})
	}
	if err := <-errCh; err != nil {
		return rows, err
	}
	return rows, nil
}

func compileEmailRegex(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// validateRow applies required-field presence (at least one mapped
// column non-empty after trim) and an optional email format check
// against whichever column mapping resolves to "email".
func validateRow(row map[string]string, mapping map[string][]string, required []string, emailRe *regexp.Regexp) (bool, []string) {
	var errs []string

	for _, field := range required {
		if !fieldPresent(row, mapping[field]) {
			errs = append(errs, fmt.Sprintf("missing required field %q", field))
		}
	}

	if emailRe != nil {
		if email := FirstNonEmpty(row, mapping["email"]); email != "" {
			if !emailRe.MatchString(email) {
				errs = append(errs, fmt.Sprintf("invalid email format: %q", email))
			}
		}
	}

	return len(errs) == 0, errs
}

func fieldPresent(row map[string]string, columns []string) bool {
	return FirstNonEmpty(row, columns) != ""
}

// FirstNonEmpty returns the first non-empty trimmed value found by
// trying each candidate column name in order. Used both by validation
// and by the transformer's field mapping step.
func FirstNonEmpty(row map[string]string, columns []string) string {
	for _, col := range columns {
		if v, ok := row[col]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
