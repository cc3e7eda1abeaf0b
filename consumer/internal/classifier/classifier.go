// Package classifier decides which alert schema a decoded payload follows.
package classifier

import (
	"errors"
	"fmt"

	"github.com/telhawk-systems/alertstream/consumer/internal/alert"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

// ErrUnrecognized is returned when no schema matches the payload.
var ErrUnrecognized = errors.New("unrecognized alert payload")

type Kind string

const (
	KindEDR          Kind = "edr"
	KindNGAV         Kind = "ngav"
	KindUnrecognized Kind = "unrecognized"
)

// Result holds exactly one parsed alert unless Kind is KindUnrecognized.
type Result struct {
	Kind Kind
	EDR  *alert.EDR
	NGAV *alert.NGAV
	// DeclaredMismatch is set when a declared type was given but the payload
	// did not parse as that type.
	DeclaredMismatch bool
}

// DataType maps the result kind onto the registry's data types.
func (r Result) DataType() registry.DataType {
	switch r.Kind {
	case KindEDR:
		return registry.DataTypeEDR
	case KindNGAV:
		return registry.DataTypeNGAV
	default:
		return registry.DataTypeNone
	}
}

type parser struct {
	kind    Kind
	markers []string
	parse   func(*alert.Document) (Result, error)
}

func (p parser) sniff(doc *alert.Document) bool {
	return doc.HasAll(p.markers...)
}

// parsers run in this order during sniffing; the first match wins.
var parsers = []parser{
	{kind: KindEDR, markers: alert.EDRMarkers, parse: parseEDR},
	{kind: KindNGAV, markers: alert.NGAVMarkers, parse: parseNGAV},
}

func parseEDR(doc *alert.Document) (Result, error) {
	e, err := alert.ParseEDR(doc)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindEDR, EDR: e}, nil
}

func parseNGAV(doc *alert.Document) (Result, error) {
	n, err := alert.ParseNGAV(doc)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindNGAV, NGAV: n}, nil
}

func parserFor(dt registry.DataType) (parser, bool) {
	for _, p := range parsers {
		if string(p.kind) == string(dt) {
			return p, true
		}
	}
	return parser{}, false
}

// Classify parses doc against the declared type first, then falls back to
// sniffing for well-known fields. An unmatched payload yields a result of
// KindUnrecognized and an error wrapping ErrUnrecognized.
func Classify(doc *alert.Document, declared registry.DataType) (Result, error) {
	mismatch := false
	if p, ok := parserFor(declared); ok {
		res, err := p.parse(doc)
		if err == nil {
			return res, nil
		}
		mismatch = true
	}

	for _, p := range parsers {
		if !p.sniff(doc) {
			continue
		}
		res, err := p.parse(doc)
		if err != nil {
			return Result{Kind: KindUnrecognized, DeclaredMismatch: mismatch},
				fmt.Errorf("%w: looks like %s: %v", ErrUnrecognized, p.kind, err)
		}
		res.DeclaredMismatch = mismatch
		return res, nil
	}
	return Result{Kind: KindUnrecognized, DeclaredMismatch: mismatch}, ErrUnrecognized
}
