package deploy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindows is returned when registration and voting windows are out
// of order.
var ErrInvalidWindows = errors.New("invalid election windows")

// Windows are the registration and voting periods baked into the contract at
// creation.
type Windows struct {
	RegistrationBegin time.Time `json:"registration_begin"`
	RegistrationEnd   time.Time `json:"registration_end"`
	VotingBegin       time.Time `json:"voting_begin"`
	VotingEnd         time.Time `json:"voting_end"`
}

// DefaultWindows opens registration at now for a week, followed by a week of
// voting.
func DefaultWindows(now time.Time) Windows {
	week := 7 * 24 * time.Hour
	return Windows{
		RegistrationBegin: now,
		RegistrationEnd:   now.Add(week),
		VotingBegin:       now.Add(week),
		VotingEnd:         now.Add(2 * week),
	}
}

func (w Windows) Validate() error {
	switch {
	case !w.RegistrationBegin.Before(w.RegistrationEnd):
		return fmt.Errorf("%w: registration must begin before it ends", ErrInvalidWindows)
	case !w.VotingBegin.Before(w.VotingEnd):
		return fmt.Errorf("%w: voting must begin before it ends", ErrInvalidWindows)
	case w.VotingBegin.Before(w.RegistrationBegin):
		return fmt.Errorf("%w: voting cannot begin before registration", ErrInvalidWindows)
	case w.RegistrationBegin.Unix() < 0:
		return fmt.Errorf("%w: timestamps before 1970", ErrInvalidWindows)
	}
	return nil
}

// Args encodes the four timestamps as 8-byte big-endian unix seconds in the
// order the approval program reads them.
func (w Windows) Args() [][]byte {
	return [][]byte{
		uint64Arg(uint64(w.RegistrationBegin.Unix())),
		uint64Arg(uint64(w.RegistrationEnd.Unix())),
		uint64Arg(uint64(w.VotingBegin.Unix())),
		uint64Arg(uint64(w.VotingEnd.Unix())),
	}
}

func uint64Arg(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
