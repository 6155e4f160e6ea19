// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package codecontext

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Interval is a 1-indexed inclusive line range within a file.
type Interval struct {
	Start int
	End   int
}

// Contains reports whether the 1-indexed line falls inside the interval.
func (iv Interval) Contains(line int) bool {
	return iv.Start <= line && line <= iv.End
}

// wholeFile spans every line of a file.
var wholeFile = Interval{Start: 1, End: math.MaxInt}

// ParseIntervals parses an interval spec like "1-5,7-10" or a bare line
// number "12". Any malformed segment invalidates the whole spec.
func ParseIntervals(spec string) []Interval {
	var intervals []Interval
	for _, part := range strings.Split(spec, ",") {
		bounds := strings.SplitN(part, "-", 2)
		start, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nil
		}
		end := start
		if len(bounds) == 2 {
			end, err = strconv.Atoi(bounds[1])
			if err != nil {
				return nil
			}
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}
	return intervals
}

// Level selects how much of a file the code message includes.
type Level int

const (
	LevelCode Level = iota + 1
	LevelInterval
	LevelCmapFull
	LevelCmap
	LevelFileName
)

// Key returns the short name of the level.
func (l Level) Key() string {
	switch l {
	case LevelCode:
		return "code"
	case LevelInterval:
		return "interval"
	case LevelCmapFull:
		return "cmap_full"
	case LevelCmap:
		return "cmap"
	case LevelFileName:
		return "file_name"
	}
	return "unknown"
}

// Description returns the operator-facing summary of the level.
func (l Level) Description() string {
	switch l {
	case LevelCode:
		return "Complete code"
	case LevelInterval:
		return "Specific range(s)"
	case LevelCmapFull:
		return "Function/Class names and signatures"
	case LevelCmap:
		return "Function/Class names"
	case LevelFileName:
		return "Relative path/filename"
	}
	return "unknown"
}

// Feature is one file's slot in the code message: which of its lines to
// show and at what level of detail.
type Feature struct {
	Path         string // absolute path
	Intervals    []Interval
	Level        Level
	UserIncluded bool

	checksum string
	message  []string
}

// NewFeature builds a feature from a path argument, which may carry an
// interval suffix like "main.go:10-40,55-60". A path that does not exist
// is kept verbatim so inclusion can report it as invalid.
func NewFeature(path string) *Feature {
	if _, err := os.Stat(path); err == nil {
		return &Feature{Path: path, Intervals: []Interval{wholeFile}, Level: LevelCode}
	}
	if idx := strings.LastIndex(path, ":"); idx >= 0 {
		base := path[:idx]
		if _, err := os.Stat(base); err == nil {
			return &Feature{
				Path:      base,
				Intervals: ParseIntervals(path[idx+1:]),
				Level:     LevelInterval,
			}
		}
	}
	return &Feature{Path: path, Intervals: []Interval{wholeFile}, Level: LevelCode}
}

// Ref returns the include-argument form of the feature.
func (f *Feature) Ref() string {
	if f.Level == LevelInterval && len(f.Intervals) > 0 {
		parts := make([]string, len(f.Intervals))
		for i, iv := range f.Intervals {
			parts[i] = fmt.Sprintf("%d-%d", iv.Start, iv.End)
		}
		return f.Path + ":" + strings.Join(parts, ",")
	}
	return f.Path
}

// ContainsLine reports whether any interval covers the 1-indexed line.
func (f *Feature) ContainsLine(line int) bool {
	for _, iv := range f.Intervals {
		if iv.Contains(line) {
			return true
		}
	}
	return false
}
