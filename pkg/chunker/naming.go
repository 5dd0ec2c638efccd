// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultNameFormat names chunks "<base>.rclone_chunk.<nnn>"
const DefaultNameFormat = "*.rclone_chunk.###"

// txnLen is the length of a transaction id: a UUID in hex without hyphens
const txnLen = 32

// NameFormat turns (base name, index) into a chunk name and back. The
// template holds exactly one "*" for the base name and one run of "#" for
// the index, zero-padded to the run's length.
type NameFormat struct {
	template string
	star     int // offset of "*"
	hash     int // offset of the "#" run
	width    int // length of the "#" run
	re       *regexp.Regexp
}

// ParseNameFormat validates a chunk name template
func ParseNameFormat(template string) (NameFormat, error) {
	if strings.Count(template, "*") != 1 {
		return NameFormat{}, errors.New(`must contain exactly one "*"`)
	}
	if strings.Contains(template, "/") {
		return NameFormat{}, errors.New(`must not contain "/"`)
	}
	first := strings.IndexByte(template, '#')
	if first < 0 {
		return NameFormat{}, errors.New(`must contain a run of "#"`)
	}
	width := len(template[first:]) - len(strings.TrimLeft(template[first:], "#"))
	if strings.Contains(template[first+width:], "#") {
		return NameFormat{}, errors.New(`must contain exactly one run of "#"`)
	}

	f := NameFormat{template: template, star: strings.IndexByte(template, '*'), hash: first, width: width}

	// Build the parser from the template's literal pieces
	digits := fmt.Sprintf("([0-9]{%d,})", width)
	var expr string
	if f.star < f.hash {
		expr = regexp.QuoteMeta(template[:f.star]) + "(.+)" +
			regexp.QuoteMeta(template[f.star+1:f.hash]) + digits +
			regexp.QuoteMeta(template[f.hash+width:])
	} else {
		expr = regexp.QuoteMeta(template[:f.hash]) + digits +
			regexp.QuoteMeta(template[f.hash+width:f.star]) + "(.+)" +
			regexp.QuoteMeta(template[f.star+1:])
	}
	f.re = regexp.MustCompile("^" + expr + fmt.Sprintf("(?:_([0-9a-f]{%d}))?$", txnLen))
	return f, nil
}

// String returns the template
func (f NameFormat) String() string {
	return f.template
}

// Format returns the name of chunk index of base. A non-empty txn is
// appended as "_<txn>".
func (f NameFormat) Format(base string, index int, txn string) string {
	num := fmt.Sprintf("%0*d", f.width, index)
	t := f.template

	var name string
	if f.star < f.hash {
		name = t[:f.star] + base + t[f.star+1:f.hash] + num + t[f.hash+f.width:]
	} else {
		name = t[:f.hash] + num + t[f.hash+f.width:f.star] + base + t[f.star+1:]
	}
	if txn != "" {
		name += "_" + txn
	}
	return name
}

// Parse reports whether name is a chunk name and returns its parts.
// Indexes must be written exactly as Format writes them.
func (f NameFormat) Parse(name string) (base string, index int, txn string, ok bool) {
	m := f.re.FindStringSubmatch(name)
	if m == nil {
		return "", 0, "", false
	}
	num := m[2]
	base = m[1]
	if f.hash < f.star {
		num, base = m[1], m[2]
	}

	index, err := strconv.Atoi(num)
	if err != nil || fmt.Sprintf("%0*d", f.width, index) != num {
		return "", 0, "", false
	}
	return base, index, m[3], true
}
