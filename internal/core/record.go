package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Record is one expense line of the ledger.
type Record struct {
	ID          int64
	Amount      Money
	Description string
}

// recordWire is the persisted shape. "item" is the canonical description
// field; "description" is read as an alias and "isEditing" is ignored.
type recordWire struct {
	ID          int64   `json:"id"`
	Amount      Money   `json:"amount"`
	Item        *string `json:"item,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	desc := r.Description
	return json.Marshal(recordWire{ID: r.ID, Amount: r.Amount, Item: &desc})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.Amount = w.Amount
	switch {
	case w.Item != nil:
		r.Description = *w.Item
	case w.Description != nil:
		r.Description = *w.Description
	default:
		r.Description = ""
	}
	return nil
}

// EncodeRecords serializes the full list as one JSON array.
func EncodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return data, nil
}

// DecodeRecords parses a JSON array previously written by EncodeRecords
// (or by the browser widget that shares the same shape).
func DecodeRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// RejectedRecord is one element of a persisted array that could not be
// decoded. ID is zero when the element carried no readable id.
type RejectedRecord struct {
	Index int
	ID    int64
	Raw   json.RawMessage
	Err   error
}

// DecodeRecordsPartial is the lenient form of DecodeRecords: it decodes each
// array element on its own and returns the ones that fail separately, so a
// single bad row does not cost the rest of the list. It only fails when data
// is not a JSON array at all.
func DecodeRecordsPartial(data []byte) ([]Record, []RejectedRecord, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("decode records: %w", err)
	}
	records := make([]Record, 0, len(raws))
	var rejected []RejectedRecord
	for i, raw := range raws {
		if string(raw) == "null" {
			rejected = append(rejected, RejectedRecord{Index: i, Raw: raw, Err: errors.New("null record")})
			continue
		}
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil {
			var idOnly struct {
				ID int64 `json:"id"`
			}
			_ = json.Unmarshal(raw, &idOnly)
			rejected = append(rejected, RejectedRecord{Index: i, ID: idOnly.ID, Raw: raw, Err: err})
			continue
		}
		records = append(records, r)
	}
	return records, rejected, nil
}

// EncodeRejected serializes rejected elements back into a JSON array of
// their original bytes.
func EncodeRejected(rejected []RejectedRecord) ([]byte, error) {
	raws := make([]json.RawMessage, len(rejected))
	for i, r := range rejected {
		raws[i] = r.Raw
	}
	data, err := json.Marshal(raws)
	if err != nil {
		return nil, fmt.Errorf("encode rejected records: %w", err)
	}
	return data, nil
}

// Sum adds up the amounts of all records. An empty slice sums to 0.00.
func Sum(records []Record) Money {
	var total Money
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}
