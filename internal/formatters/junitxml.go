package formatters

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
)

type JUnitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	Name      string          `xml:"name,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

type JUnitTestCase struct {
	XMLName     xml.Name          `xml:"testcase"`
	Classname   string            `xml:"classname,attr"`
	Name        string            `xml:"name,attr"`
	Time        string            `xml:"time,attr"`
	SkipMessage *JUnitSkipMessage `xml:"skipped,omitempty"`
	Failure     *JUnitFailure     `xml:"failure,omitempty"`
	SystemOut   string            `xml:"system-out,omitempty"`
}

type JUnitSkipMessage struct {
	Message string `xml:"message,attr"`
}

type JUnitFailure struct {
	Message  string `xml:"message,attr"`
	Type     string `xml:"type,attr"`
	Contents string `xml:",chardata"`
}

// junitXMLFormatter reports every step as a test case. Warnings and the
// fatal step are failures.
func junitXMLFormatter(ctx context.Context, r bootstrap.Results) ([]byte, error) {
	suite := JUnitTestSuite{
		Tests: len(r.Steps),
		Name:  "rovprep bootstrap",
	}

	totalDuration := time.Duration(0)
	for _, s := range r.Steps {
		tc := JUnitTestCase{
			Classname: "bootstrap",
			Name:      s.Name,
			Time:      s.Elapsed.String(),
		}
		switch s.Status {
		case bootstrap.StatusSkipped:
			suite.Skipped++
			tc.SkipMessage = &JUnitSkipMessage{Message: s.Message}
		case bootstrap.StatusWarning, bootstrap.StatusFailed:
			suite.Failures++
			tc.Failure = &JUnitFailure{
				Message:  string(s.Status),
				Contents: s.Message,
			}
		default:
			tc.SystemOut = s.Message
		}
		suite.TestCases = append(suite.TestCases, tc)
		totalDuration += s.Elapsed
	}
	suite.Time = totalDuration.String()

	bytes, err := xmlMarshalIndent(JUnitTestSuites{Suites: []JUnitTestSuite{suite}}, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("%w with formatter %s: %s",
			ErrFormattingResults,
			"junitxml",
			err,
		)
	}

	return bytes, nil
}
