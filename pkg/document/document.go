// Package document reads and writes commitment documents and audit sidecars,
// locally or in S3.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

// Marshal renders a document as indented JSON with a trailing newline.
// Claims are keyed by account, so the output is byte-for-byte deterministic.
func Marshal(doc *types.CommitmentDocument) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("cannot marshal nil CommitmentDocument")
	}
	return marshalIndent(doc)
}

// Unmarshal parses a document and rejects any unit other than minor.
func Unmarshal(data []byte) (*types.CommitmentDocument, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", types.ErrEmptyInput)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc types.CommitmentDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CommitmentDocument: %w", err)
	}
	if doc.Unit != types.UnitMinor {
		return nil, fmt.Errorf("unsupported document unit %q, expected %q", doc.Unit, types.UnitMinor)
	}
	return &doc, nil
}

func MarshalAudit(audit types.AuditLog) ([]byte, error) {
	if audit == nil {
		audit = types.AuditLog{}
	}
	return marshalIndent(audit)
}

func marshalIndent(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
