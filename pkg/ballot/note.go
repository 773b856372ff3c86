package ballot

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Note is the anonymized payload written to the ledger. It must never carry
// anything that identifies the voter.
type Note struct {
	ElectionID  int64 `json:"election_id"`
	CandidateID int64 `json:"candidate_id"`
}

var errNoteFields = errors.New("note lacks election_id or candidate_id")

// EncodeNote renders {"election_id":E,"candidate_id":C}.
func EncodeNote(electionID, candidateID int64) []byte {
	b, _ := json.Marshal(Note{ElectionID: electionID, CandidateID: candidateID})
	return b
}

// DecodeNote parses a ledger note. Unrelated notes (other JSON, plain text,
// missing fields) are rejected.
func DecodeNote(b []byte) (Note, error) {
	var raw struct {
		ElectionID  *int64 `json:"election_id"`
		CandidateID *int64 `json:"candidate_id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Note{}, fmt.Errorf("decode note: %w", err)
	}
	if raw.ElectionID == nil || raw.CandidateID == nil {
		return Note{}, errNoteFields
	}
	return Note{ElectionID: *raw.ElectionID, CandidateID: *raw.CandidateID}, nil
}
