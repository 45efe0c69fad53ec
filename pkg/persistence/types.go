package persistence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

var (
	ErrRoundImmutable = errors.New("round already exists with a different root")
	ErrStoreClosed    = errors.New("persistence layer is closed")
)

// RoundRecord is one published distribution round.
type RoundRecord struct {
	RoundID string `json:"roundId"`

	// CreatedAt is the Unix timestamp of the first save
	CreatedAt int64 `json:"createdAt"`

	Root common.Hash `json:"root"`

	// Source is the input the document was compiled from, for operators
	Source string `json:"source,omitempty"`

	Document *types.CommitmentDocument `json:"document"`
}

// NewRoundRecord wraps doc in a record. A random round id is assigned when
// roundID is empty.
func NewRoundRecord(roundID string, source string, doc *types.CommitmentDocument) (*RoundRecord, error) {
	if doc == nil {
		return nil, fmt.Errorf("cannot create a round from a nil document")
	}
	if roundID == "" {
		roundID = uuid.New().String()
	}
	return &RoundRecord{
		RoundID:   roundID,
		CreatedAt: time.Now().Unix(),
		Root:      doc.Root,
		Source:    source,
		Document:  doc,
	}, nil
}

func (r *RoundRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("cannot save nil RoundRecord")
	}
	if r.RoundID == "" {
		return fmt.Errorf("round id cannot be empty")
	}
	if r.Document == nil {
		return fmt.Errorf("round %s has no document", r.RoundID)
	}
	if r.Document.Root != r.Root {
		return fmt.Errorf("round %s root %s does not match its document root %s",
			r.RoundID, r.Root.Hex(), r.Document.Root.Hex())
	}
	return nil
}

// CheckOverwrite decides what saving incoming over existing means.
// It returns true when the save is a no-op.
func CheckOverwrite(existing, incoming *RoundRecord) (bool, error) {
	if existing == nil {
		return false, nil
	}
	if existing.Root != incoming.Root {
		return false, fmt.Errorf("%w: round %s has root %s, refusing %s",
			ErrRoundImmutable, incoming.RoundID, existing.Root.Hex(), incoming.Root.Hex())
	}
	return true, nil
}

// SortRounds orders rounds by creation time, then round id.
func SortRounds(rounds []*RoundRecord) {
	sort.Slice(rounds, func(i, j int) bool {
		if rounds[i].CreatedAt != rounds[j].CreatedAt {
			return rounds[i].CreatedAt < rounds[j].CreatedAt
		}
		return rounds[i].RoundID < rounds[j].RoundID
	})
}
