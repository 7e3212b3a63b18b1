package pairing

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase of a pairing attempt.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "NotStarted"
	case InProgress:
		return "InProgress"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Terminal reports whether p ends an attempt.
func (p Phase) Terminal() bool {
	return p == Succeeded || p == Failed
}

// Replies written to the status record and returned by PAIR_STATUS.
const (
	NotInProgressText = "Pairing is not in progress."
	SucceededText     = "OK"
	FailurePrefix     = "FAILURE: "
)

// Status is the pairing record of the device.
type Status struct {
	Phase  Phase
	Step   int
	Total  int
	Detail string
}

// String renders the record text.
func (s Status) String() string {
	switch s.Phase {
	case InProgress:
		return fmt.Sprintf("%d/%d", s.Step, s.Total)
	case Succeeded:
		return SucceededText
	case Failed:
		return FailurePrefix + s.Detail
	default:
		return NotInProgressText
	}
}

// ParseStatus reads a record. Empty text is an attempt that has not
// reported progress yet.
func ParseStatus(text string) (Status, error) {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}

	switch {
	case text == "":
		return Status{Phase: InProgress}, nil
	case text == SucceededText:
		return Status{Phase: Succeeded}, nil
	case text == NotInProgressText:
		return Status{Phase: NotStarted}, nil
	case strings.HasPrefix(text, strings.TrimSpace(FailurePrefix)):
		detail := strings.TrimSpace(strings.TrimPrefix(text, strings.TrimSpace(FailurePrefix)))
		return Status{Phase: Failed, Detail: detail}, nil
	}

	stepText, totalText, ok := strings.Cut(text, "/")
	if !ok {
		return Status{}, fmt.Errorf("unrecognized pairing status %q", text)
	}
	step, err := strconv.Atoi(stepText)
	if err != nil {
		return Status{}, fmt.Errorf("unrecognized pairing status %q", text)
	}
	total, err := strconv.Atoi(totalText)
	if err != nil || step < 0 || total < step {
		return Status{}, fmt.Errorf("unrecognized pairing status %q", text)
	}
	return Status{Phase: InProgress, Step: step, Total: total}, nil
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", "; ")), " ")
}
