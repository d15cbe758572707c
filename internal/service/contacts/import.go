package contacts

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/google/uuid"
)

// ImportResult reports per-row accounting for a bulk import. A bad row
// never fails the batch; it is counted and skipped.
type ImportResult struct {
	Imported          int `json:"imported"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	SkippedInvalid    int `json:"skipped_invalid"`
}

// ErrMissingHeader is returned when the first non-blank CSV record does
// not contain the three required column names.
var ErrMissingHeader = errors.New("header row with firstname, lastname, email columns is required")

type columnMap struct {
	first, last, email int
}

// mapHeader locates the required columns by name, case-insensitively and
// order-independently.
func mapHeader(record []string) (columnMap, bool) {
	cm := columnMap{first: -1, last: -1, email: -1}
	for i, col := range record {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "firstname":
			cm.first = i
		case "lastname":
			cm.last = i
		case "email":
			cm.email = i
		}
	}
	return cm, cm.first >= 0 && cm.last >= 0 && cm.email >= 0
}

// Import reads comma-delimited contact rows (RFC 4180 quoting) and adds
// them to the list. Commits are per row: valid rows are persisted even
// when later rows are invalid. Duplicates are detected against both the
// list's existing contacts and earlier rows of the same batch.
func (s *Service) Import(ctx context.Context, councillorID, listID string, r io.Reader) (*ImportResult, error) {
	if _, err := s.repo.GetList(ctx, councillorID, listID); err != nil {
		return nil, err
	}

	existing, err := s.repo.ContactsForList(ctx, councillorID, listID)
	if err != nil {
		return nil, fmt.Errorf("load existing contacts: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[NormalizeEmail(c.Email)] = true
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	cm, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken row is a skip, not a batch failure.
			res.SkippedInvalid++
			continue
		}
		if blankRecord(record) {
			continue
		}

		row, ok := extractRow(record, cm)
		if !ok {
			res.SkippedInvalid++
			continue
		}

		norm := NormalizeEmail(row.email)
		if seen[norm] {
			res.SkippedDuplicates++
			continue
		}

		c := &domain.Contact{
			ID:           uuid.New().String(),
			CouncillorID: councillorID,
			ListID:       listID,
			Email:        row.email,
			FirstName:    row.first,
			LastName:     row.last,
			AddedAt:      time.Now().UTC(),
		}
		if err := s.repo.AddContact(ctx, c); err != nil {
			if errors.Is(err, ErrDuplicateContact) {
				res.SkippedDuplicates++
				continue
			}
			return res, fmt.Errorf("import contact: %w", err)
		}
		seen[norm] = true
		res.Imported++
	}

	logger.Info("contact import finished",
		"list_id", listID,
		"imported", res.Imported,
		"skipped_duplicates", res.SkippedDuplicates,
		"skipped_invalid", res.SkippedInvalid)
	return res, nil
}

// readHeader scans for the first non-blank record and maps its columns.
func readHeader(cr *csv.Reader) (columnMap, error) {
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return columnMap{}, ErrMissingHeader
		}
		if err != nil {
			return columnMap{}, fmt.Errorf("%w: %v", ErrMissingHeader, err)
		}
		if blankRecord(record) {
			continue
		}
		cm, ok := mapHeader(record)
		if !ok {
			return columnMap{}, ErrMissingHeader
		}
		return cm, nil
	}
}

type importRow struct {
	first, last, email string
}

func extractRow(record []string, cm columnMap) (importRow, bool) {
	max := cm.first
	if cm.last > max {
		max = cm.last
	}
	if cm.email > max {
		max = cm.email
	}
	if len(record) <= max {
		return importRow{}, false
	}

	row := importRow{
		first: strings.TrimSpace(record[cm.first]),
		last:  strings.TrimSpace(record[cm.last]),
		email: strings.TrimSpace(record[cm.email]),
	}
	if row.first == "" || row.last == "" || !ValidEmail(row.email) {
		return importRow{}, false
	}
	return row, true
}

func blankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
