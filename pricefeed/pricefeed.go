// Package pricefeed imports external price and exchange rate observations
// from JSON documents.
//
// A Mapping locates the observations in a document with jsonpath
// expressions: Rows selects the list of observations, Date and Value are
// evaluated on every row.
//
//	{"data": [{"date": "2024-01-02", "close": 185.64}, ...]}
//
// is read by
//
//	Mapping{Rows: "$.data[*]", Date: "$.date", Value: "$.close"}
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	portfolio "github.com/etnz/portfolio-tracker"
)

// Mapping locates observations in a JSON document.
type Mapping struct {
	Rows  string `json:"rows"`
	Date  string `json:"date"`
	Value string `json:"value"`
}

// DefaultMapping reads a top level list of {"date", "value"} objects.
var DefaultMapping = Mapping{Rows: "$[*]", Date: "$.date", Value: "$.value"}

func (m Mapping) withDefaults() Mapping {
	if m.Rows == "" {
		m.Rows = DefaultMapping.Rows
	}
	if m.Date == "" {
		m.Date = DefaultMapping.Date
	}
	if m.Value == "" {
		m.Value = DefaultMapping.Value
	}
	return m
}

// Point is one dated observation.
type Point struct {
	Date  portfolio.Date
	Value decimal.Decimal
}

// Decode reads the points of the JSON document r located by m.
func Decode(r io.Reader, m Mapping) ([]Point, error) {
	m = m.withDefaults()
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("error decoding document: %w", err)
	}
	rows, err := jsonpath.Get(m.Rows, doc)
	if err != nil {
		return nil, fmt.Errorf("error selecting rows %q: %w", m.Rows, err)
	}
	list, ok := rows.([]any)
	if !ok {
		// a path without wildcard selects a single row
		list = []any{rows}
	}

	points := make([]Point, 0, len(list))
	for i, row := range list {
		jdate, err := first(jsonpath.Get(m.Date, row))
		if err != nil {
			return nil, fmt.Errorf("row %d: error reading date %q: %w", i, m.Date, err)
		}
		d, err := parseDate(jdate)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		jval, err := first(jsonpath.Get(m.Value, row))
		if err != nil {
			return nil, fmt.Errorf("row %d: error reading value %q: %w", i, m.Value, err)
		}
		v, err := parseValue(jval)
		if err != nil {
			return nil, fmt.Errorf("row %d on %s: %w", i, d, err)
		}
		points = append(points, Point{Date: d, Value: v})
	}
	return points, nil
}

// first keeps the first answer when jsonpath returns a list of answers.
func first(jval any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if jlist, ok := jval.([]any); ok {
		if len(jlist) == 0 {
			return nil, fmt.Errorf("no match")
		}
		jval = jlist[0]
	}
	return jval, nil
}

// parseDate reads a date string, or a unix timestamp in seconds.
func parseDate(jval any) (portfolio.Date, error) {
	switch v := jval.(type) {
	case string:
		if len(v) > 10 {
			// timestamps like 2024-01-02T17:30:00Z
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return portfolio.NewDate(t.UTC().Date()), nil
			}
		}
		return portfolio.ParseDate(v)
	case json.Number:
		sec, err := v.Int64()
		if err != nil {
			return portfolio.Date{}, fmt.Errorf("invalid timestamp %v: %w", v, err)
		}
		return portfolio.NewDate(time.Unix(sec, 0).UTC().Date()), nil
	default:
		return portfolio.Date{}, fmt.Errorf("cannot read a date from %v", jval)
	}
}

// parseValue reads a number, or a number formatted as a string. Some
// sources use a decimal comma and spaces as thousand separators.
func parseValue(jval any) (decimal.Decimal, error) {
	switch v := jval.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		s := strings.ReplaceAll(v, " ", "")
		s = strings.ReplaceAll(s, ",", ".")
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("invalid value %q: %w", v, err)
		}
		return d, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("cannot read a value from %v", jval)
	}
}

// Quotes returns points as prices of asset.
func Quotes(asset string, points []Point) []portfolio.Quote {
	res := make([]portfolio.Quote, len(points))
	for i, p := range points {
		res[i] = portfolio.Quote{Asset: asset, Date: p.Date, Price: p.Value}
	}
	return res
}

// Rates returns points as exchange rates from one currency to another.
func Rates(from, to string, points []Point) []portfolio.FXRate {
	res := make([]portfolio.FXRate, len(points))
	for i, p := range points {
		res[i] = portfolio.FXRate{From: from, To: to, Date: p.Date, Rate: p.Value}
	}
	return res
}

// Recorder records external observations, portfolio.Engine implements it.
type Recorder interface {
	PutPrice(ctx context.Context, q portfolio.Quote) error
	PutFXRate(ctx context.Context, r portfolio.FXRate) error
}

// ImportPrices records every quote and returns how many were recorded.
// It stops at the first rejected quote.
func ImportPrices(ctx context.Context, rec Recorder, quotes []portfolio.Quote) (int, error) {
	for i, q := range quotes {
		if err := rec.PutPrice(ctx, q); err != nil {
			return i, fmt.Errorf("price of %s on %s: %w", q.Asset, q.Date, err)
		}
	}
	return len(quotes), nil
}

// ImportRates records every rate and returns how many were recorded.
// It stops at the first rejected rate.
func ImportRates(ctx context.Context, rec Recorder, rates []portfolio.FXRate) (int, error) {
	for i, r := range rates {
		if err := rec.PutFXRate(ctx, r); err != nil {
			return i, fmt.Errorf("rate %s/%s on %s: %w", r.From, r.To, r.Date, err)
		}
	}
	return len(rates), nil
}

// DecodeFile reads the points of the JSON document stored in file.
func DecodeFile(file string, m Mapping) ([]Point, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	points, err := Decode(f, m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return points, nil
}
