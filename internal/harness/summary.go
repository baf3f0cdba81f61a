package harness

import (
	"strings"

	"github.com/lvzrr/lvjb/internal/diag"
)

// Summary is the aggregate of a test run. Only passing entry points are
// collected; their order is completion order and is not stable.
type Summary struct {
	Passed  []string
	Total   int
	Batches int
}

// Failed is the number of test files that did not pass.
func (s *Summary) Failed() int {
	return s.Total - len(s.Passed)
}

// Report prints the passed list, or a "no tests passed" diagnostic.
func (s *Summary) Report(p *diag.Printer) {
	if len(s.Passed) == 0 {
		p.Errorf(diag.Fail, "TESTRUNNER", "No tests passed.")
		return
	}
	p.Errorf(diag.OK, "PASSED TESTS", ": %s ", strings.Join(s.Passed, " "))
}
