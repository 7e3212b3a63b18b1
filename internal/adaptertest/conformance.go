// Package adaptertest provides a transport-agnostic conformance suite for
// adapter.Dialer implementations.
//
// Every dialer must open a shell that speaks the AT line protocol, reject a
// wrong credential or an unreachable address with ErrConnection, honor a
// cancelled context and tolerate repeated Close.
package adaptertest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/radio-control/linkctl/internal/adapter"
)

// Target describes a reachable radio behind a dialer.
type Target struct {
	Name        string
	Dialer      adapter.Dialer
	Address     string
	Credential  string
	Unreachable string        // an address nothing answers at
	DialBudget  time.Duration // upper bound for a successful dial
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	DialerName    string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

const replyWait = 5 * time.Second

// RunConformance runs the suite. newTarget is called once per check so each
// starts from a fresh radio.
func RunConformance(t *testing.T, newTarget func(t *testing.T) Target) {
	startTime := time.Now()

	report := &ConformanceReport{
		DialerName:    newTarget(t).Name,
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	checks := []struct {
		name string
		run  func(t *testing.T, target Target, details map[string]interface{}) error
	}{
		{"Dial_Basic", checkDialBasic},
		{"Dial_WrongCredential", checkWrongCredential},
		{"Dial_Unreachable", checkUnreachable},
		{"Dial_Cancelled", checkCancelled},
		{"Shell_ErrorLine", checkErrorLine},
		{"Shell_CloseTwice", checkCloseTwice},
	}
	for _, c := range checks {
		result := ConformanceResult{TestName: c.name, Details: make(map[string]interface{})}
		start := time.Now()
		err := c.run(t, newTarget(t), result.Details)
		result.Duration = time.Since(start)
		result.Passed = err == nil
		if err != nil {
			result.Error = err.Error()
		}
		report.addResult(result)
	}

	report.Duration = time.Since(startTime)
	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Dialer conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

func checkDialBasic(_ *testing.T, target Target, details map[string]interface{}) error {
	start := time.Now()
	sh, err := target.Dialer.Dial(context.Background(), target.Address, target.Credential)
	if err != nil {
		return fmt.Errorf("Dial failed: %v", err)
	}
	defer sh.Close()

	elapsed := time.Since(start)
	details["dial"] = elapsed
	if target.DialBudget > 0 && elapsed > target.DialBudget {
		return fmt.Errorf("dial took %v, budget %v", elapsed, target.DialBudget)
	}

	lines, err := exchange(sh, "AT")
	if err != nil {
		return err
	}
	if last := lines[len(lines)-1]; last != "OK" {
		return fmt.Errorf("AT answered %q, want OK", last)
	}
	return nil
}

func checkWrongCredential(_ *testing.T, target Target, _ map[string]interface{}) error {
	sh, err := target.Dialer.Dial(context.Background(), target.Address, target.Credential+"-wrong")
	if err == nil {
		_ = sh.Close()
		return errors.New("Dial accepted a wrong credential")
	}
	if !errors.Is(err, adapter.ErrConnection) {
		return fmt.Errorf("wrong credential gave %v, want CONNECTION", err)
	}
	return nil
}

func checkUnreachable(_ *testing.T, target Target, _ map[string]interface{}) error {
	if target.Unreachable == "" {
		return nil
	}
	sh, err := target.Dialer.Dial(context.Background(), target.Unreachable, target.Credential)
	if err == nil {
		_ = sh.Close()
		return fmt.Errorf("Dial reached %s", target.Unreachable)
	}
	if !errors.Is(err, adapter.ErrConnection) {
		return fmt.Errorf("unreachable address gave %v, want CONNECTION", err)
	}
	return nil
}

func checkCancelled(_ *testing.T, target Target, _ map[string]interface{}) error {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sh, err := target.Dialer.Dial(ctx, target.Address, target.Credential)
	if err == nil {
		_ = sh.Close()
		return errors.New("Dial succeeded with a cancelled context")
	}
	return nil
}

func checkErrorLine(_ *testing.T, target Target, details map[string]interface{}) error {
	sh, err := target.Dialer.Dial(context.Background(), target.Address, target.Credential)
	if err != nil {
		return fmt.Errorf("Dial failed: %v", err)
	}
	defer sh.Close()

	lines, err := exchange(sh, "AT+NOSUCHCOMMAND")
	if err != nil {
		return err
	}
	last := lines[len(lines)-1]
	details["reply"] = last
	if !strings.Contains(last, "ERROR") {
		return fmt.Errorf("unknown command answered %q, want an ERROR line", last)
	}
	return nil
}

func checkCloseTwice(_ *testing.T, target Target, _ map[string]interface{}) (err error) {
	sh, err := target.Dialer.Dial(context.Background(), target.Address, target.Credential)
	if err != nil {
		return fmt.Errorf("Dial failed: %v", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Close panicked: %v", r)
		}
	}()
	_ = sh.Close()
	_ = sh.Close()
	return nil
}

// exchange sends cmd and collects lines up to the first OK or ERROR line.
func exchange(sh adapter.Shell, cmd string) ([]string, error) {
	if _, err := io.WriteString(sh, cmd+"\n"); err != nil {
		return nil, fmt.Errorf("write %s: %v", cmd, err)
	}

	type reply struct {
		lines []string
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		r := bufio.NewReader(sh)
		var lines []string
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				done <- reply{lines, err}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			lines = append(lines, line)
			if line == "OK" || strings.Contains(line, "ERROR") {
				done <- reply{lines, nil}
				return
			}
		}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("read after %s: %v", cmd, r.err)
		}
		return r.lines, nil
	case <-time.After(replyWait):
		_ = sh.Close()
		return nil, fmt.Errorf("no OK or ERROR within %v after %s", replyWait, cmd)
	}
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("%s", strings.Repeat("=", 72))
	t.Logf("DIALER CONFORMANCE: %s  %d/%d passed in %v",
		report.DialerName, report.PassedTests, report.TotalTests, report.Duration)
	t.Logf("%s", strings.Repeat("-", 72))
	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		details := result.Error
		if details == "" && len(result.Details) > 0 {
			var parts []string
			for k, v := range result.Details {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(parts, ", ")
		}
		t.Logf("%-24s %-5s %-12s %s", result.TestName, status, result.Duration.String(), details)
	}
}
