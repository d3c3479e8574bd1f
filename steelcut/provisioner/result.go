package provisioner

import "fmt"

// Outcome classifies how a manifest record was handled.
type Outcome int

const (
	// Provisioned records ran to completion; individual non-fatal steps may
	// still have failed, see Result.Err.
	Provisioned Outcome = iota
	// Skipped records belong to accounts that already existed and were
	// reconciled without touching the password.
	Skipped
	// Invalid records were rejected before any system change.
	Invalid
	// Failed records were abandoned part way.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Provisioned:
		return "provisioned"
	case Skipped:
		return "skipped"
	case Invalid:
		return "invalid"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the per-record value consumed by the run loop.
type Result struct {
	Line        int
	Username    string
	Outcome     Outcome
	Created     bool // the account did not exist before this record
	PasswordSet bool
	Err         error
}

type Summary struct {
	Provisioned int
	Skipped     int
	Invalid     int
	Failed      int
	Warnings    int // provisioned or skipped records with at least one failed step
	Results     []Result
}

func (s *Summary) add(r Result) {
	switch r.Outcome {
	case Provisioned:
		s.Provisioned++
		if r.Err != nil {
			s.Warnings++
		}
	case Skipped:
		s.Skipped++
		if r.Err != nil {
			s.Warnings++
		}
	case Invalid:
		s.Invalid++
	case Failed:
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

func (s Summary) String() string {
	return fmt.Sprintf("%d provisioned, %d skipped, %d invalid, %d failed (%d with step errors)",
		s.Provisioned, s.Skipped, s.Invalid, s.Failed, s.Warnings)
}
