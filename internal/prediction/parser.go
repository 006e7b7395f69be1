// Package prediction turns the loosely structured text returned by a remote
// classification endpoint into a status label and an exact confidence.
//
// Decoding is an ordered chain: the text is first read as a literal
// (a tuple or list such as ('good', 0.95), or any other single value), then, only if
// that reading is rejected, split on its first comma. When both readings are
// rejected the caller gets a *ParseError carrying the raw text.
package prediction

import (
	"errors"
	"fmt"
	"strings"
)

// GoodStatus is the label that sets RawPrediction to 1.
const GoodStatus = "good"

// errRejected marks a step that could not read the text and lets the next
// step try. Any other error stops the chain.
var errRejected = errors.New("rejected")

// Result is a decoded classification.
type Result struct {
	Status        string
	Confidence    Confidence
	RawPrediction int
	RawResponse   string
}

// ParseError reports a response no step could decode.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return "could not parse remote response: " + e.Raw
}

func (e *ParseError) Unwrap() error { return e.Err }

type step struct {
	name string
	read func(text string) (*Result, error)
}

var chain = []step{
	{name: "literal", read: readLiteralResponse},
	{name: "delimited", read: readDelimitedResponse},
}

// Parse decodes raw. Surrounding whitespace is ignored.
func Parse(raw string) (*Result, error) {
	text := strings.TrimSpace(raw)

	var last error
	for _, s := range chain {
		res, err := s.read(text)
		if err == nil {
			res.RawPrediction = RawPredictionFor(res.Status)
			res.RawResponse = raw
			return res, nil
		}
		last = fmt.Errorf("%s: %w", s.name, err)
		if !errors.Is(err, errRejected) {
			break
		}
	}
	return nil, &ParseError{Raw: raw, Err: last}
}

// RawPredictionFor is 1 when status is "good" in any letter case.
func RawPredictionFor(status string) int {
	if strings.ToLower(status) == GoodStatus {
		return 1
	}
	return 0
}

func readLiteralResponse(text string) (*Result, error) {
	value, err := readLiteral(text)
	if errors.Is(err, errSyntax) {
		return nil, fmt.Errorf("%w: %v", errRejected, err)
	}
	if err != nil {
		return nil, err
	}

	if !value.isSequence() {
		return &Result{Status: stripQuotes(value.str()), Confidence: DefaultConfidence}, nil
	}
	if len(value.items) < 2 {
		return nil, fmt.Errorf("%w: insufficient values in response: %s", errRejected, value.repr())
	}

	// A non-numeric confidence is not a reading problem, so it does not fall
	// through to the delimited step.
	confidence, err := NewConfidence(value.items[1].str())
	if err != nil {
		return nil, err
	}
	return &Result{Status: stripQuotes(value.items[0].str()), Confidence: confidence}, nil
}

func readDelimitedResponse(text string) (*Result, error) {
	parts := strings.Split(text, ",")
	res := &Result{Status: stripQuotes(parts[0]), Confidence: DefaultConfidence}
	if len(parts) > 1 {
		confidence, err := NewConfidence(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errRejected, err)
		}
		res.Confidence = confidence
	}
	return res, nil
}

func stripQuotes(s string) string {
	return strings.Trim(s, `"`)
}
