package crawler

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// NewBatch keeps only the records whose title contains topic,
// case-insensitively. Records without a title are dropped.
func NewBatch(topic, modifier string, records []ItemRecord) (Batch, int) {
	kept := make([]ItemRecord, 0, len(records))
	for _, r := range records {
		if r.Title == nil || !containsLower(*r.Title, topic) {
			continue
		}
		kept = append(kept, r)
	}
	return Batch{Topic: topic, Modifier: modifier, Items: kept}, len(records) - len(kept)
}

// PartitionName returns the file stem for a modifier: the topic itself when
// the modifier is empty.
func PartitionName(topic, modifier string) string {
	if modifier == "" {
		return topic
	}
	return modifier
}

// WriteCSV encodes items with the fixed header row.
func WriteCSV(w io.Writer, items []ItemRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, item := range items {
		if err := cw.Write(item.Stored().Values()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV decodes a batch written by WriteCSV. Columns are matched by header
// name so reordered files still load.
func ReadCSV(r io.Reader) ([]StoredItem, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return []StoredItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	items := []StoredItem{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		items = append(items, StoredItem{
			Price:  field(row, "price"),
			Image:  field(row, "image"),
			Rating: field(row, "rating"),
			Title:  field(row, "title"),
			Href:   field(row, "href"),
		})
	}
	return items, nil
}

func containsLower(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
