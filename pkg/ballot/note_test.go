package ballot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeNoteCarriesOnlyBallotContent(t *testing.T) {
	b := EncodeNote(3, 9)
	assert.JSONEq(t, `{"election_id":3,"candidate_id":9}`, string(b))

	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Len(t, fields, 2)
}

func TestDecodeNote(t *testing.T) {
	n, err := DecodeNote(EncodeNote(1, 2))
	require.NoError(t, err)
	assert.Equal(t, Note{ElectionID: 1, CandidateID: 2}, n)

	// notes written with spaces after separators are accepted too
	n, err = DecodeNote([]byte(`{"election_id": 4, "candidate_id": 5}`))
	require.NoError(t, err)
	assert.Equal(t, Note{ElectionID: 4, CandidateID: 5}, n)

	for _, bad := range []string{``, `hello`, `{"election_id":1}`, `{"candidate_id":1}`, `[1,2]`, `{"election_id":"x","candidate_id":1}`} {
		_, err := DecodeNote([]byte(bad))
		assert.Error(t, err, bad)
	}
}
