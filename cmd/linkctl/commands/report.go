package commands

import (
	"encoding/json"
	"io"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/radio"
	"github.com/radio-control/linkctl/internal/session"
)

// report is the single JSON line every one-shot command prints.
type report struct {
	IsSuccess bool   `json:"is_success"`
	Message   string `json:"message"`
}

func printReport(w io.Writer, ok bool, message string) error {
	return json.NewEncoder(w).Encode(report{IsSuccess: ok, Message: message})
}

// printResult reports a batch outcome with secrets masked.
func printResult(w io.Writer, result session.Result, success string, secrets ...string) error {
	if result.Success {
		return printReport(w, true, success)
	}
	msg := result.Text()
	if msg == "" {
		msg = adapter.Cause(result.Err)
	}
	for _, s := range secrets {
		msg = radio.Redact(msg, s)
	}
	return printReport(w, false, adapter.Code(result.Err)+": "+msg)
}
