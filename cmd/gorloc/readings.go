// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.9
//

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mkhts/gorloc"
)

// READINGS TEXT FORMAT
//
// One reading per line, whitespace separated, '#' starts a comment:
//
//   ranging <coords x dims> <distance> <distance sd>
//   rssi    <coords x dims> <level>    <level sd>
//   dual    <coords x dims> <distance> <distance sd> <level> <level sd>
//
// Coordinates are the anchor position in [m], distances in [m] and
// levels in [dBm].

// parseReadings reads the readings text format
func parseReadings(r io.Reader, dims int) ([]*gorloc.Reading, error) {
	var readings []*gorloc.Reading
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		reading, err := parseReadingFields(fields, dims)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineNo, err)
		}
		readings = append(readings, reading)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read readings: %v", err)
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("no readings found")
	}
	return readings, nil
}

// parseReadingFields turns one tokenized line into a reading
func parseReadingFields(fields []string, dims int) (*gorloc.Reading, error) {
	kind := strings.ToLower(fields[0])

	var nVals int
	switch kind {
	case "ranging", "rssi":
		nVals = 2
	case "dual":
		nVals = 4
	default:
		return nil, fmt.Errorf("unknown reading kind %q", fields[0])
	}
	if len(fields) != 1+dims+nVals {
		return nil, fmt.Errorf("%s reading needs %d fields, got %d", kind, 1+dims+nVals, len(fields))
	}

	vals := make([]float64, 0, dims+nVals)
	for _, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", f)
		}
		vals = append(vals, v)
	}
	anchor := gorloc.Point(vals[:dims])

	switch kind {
	case "ranging":
		return gorloc.NewRangingReading(anchor, vals[dims], vals[dims+1])
	case "rssi":
		return gorloc.NewRssiReading(anchor, vals[dims], vals[dims+1])
	default:
		return gorloc.NewRangingAndRssiReading(anchor, vals[dims], vals[dims+1], vals[dims+2], vals[dims+3])
	}
}

// writeReading emits one reading in the readings text format
func writeReading(w io.Writer, kind string, anchor gorloc.Point, vals ...float64) error {
	parts := make([]string, 0, 1+len(anchor)+len(vals))
	parts = append(parts, kind)
	for _, c := range anchor {
		parts = append(parts, strconv.FormatFloat(c, 'f', 6, 64))
	}
	for _, v := range vals {
		parts = append(parts, strconv.FormatFloat(v, 'f', 6, 64))
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " "))
	return err
}

// parsePoint parses a comma separated coordinate list, e.g. "1.5,2.0"
func parsePoint(s string, dims int) (gorloc.Point, error) {
	fields := strings.Split(s, ",")
	if len(fields) != dims {
		return nil, fmt.Errorf("position %q needs %d coordinates", s, dims)
	}
	p := make(gorloc.Point, dims)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("bad coordinate %q", f)
		}
		p[i] = v
	}
	return p, nil
}

// parseScores parses a comma separated quality score list
func parseScores(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	scores := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("bad quality score %q", f)
		}
		scores = append(scores, v)
	}
	return scores, nil
}
