package models

import (
	"fmt"
	"time"
)

// Partition identifies one calendar month of trip records.
type Partition struct {
	Year  int
	Month time.Month
}

// ParsePartition parses the YYYY-MM form used in the checkpoint table.
func ParsePartition(s string) (Partition, error) {
	if len(s) != 7 || s[4] != '-' {
		return Partition{}, fmt.Errorf("invalid partition %q: want YYYY-MM", s)
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Partition{}, fmt.Errorf("invalid partition %q: %w", s, err)
	}
	return Partition{Year: t.Year(), Month: t.Month()}, nil
}

// MustParsePartition is ParsePartition for literals.
func MustParsePartition(s string) Partition {
	p, err := ParsePartition(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Partition) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Key returns the partition as a sortable YYYYMM integer.
func (p Partition) Key() int {
	return p.Year*100 + int(p.Month)
}

func (p Partition) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Partition) Next() Partition {
	if p.Month == time.December {
		return Partition{Year: p.Year + 1, Month: time.January}
	}
	return Partition{Year: p.Year, Month: p.Month + 1}
}

func (p Partition) Prev() Partition {
	if p.Month == time.January {
		return Partition{Year: p.Year - 1, Month: time.December}
	}
	return Partition{Year: p.Year, Month: p.Month - 1}
}

// Compare returns -1, 0 or +1.
func (p Partition) Compare(o Partition) int {
	switch {
	case p.Key() < o.Key():
		return -1
	case p.Key() > o.Key():
		return 1
	default:
		return 0
	}
}

func (p Partition) Before(o Partition) bool { return p.Compare(o) < 0 }
func (p Partition) After(o Partition) bool  { return p.Compare(o) > 0 }

// PartitionOf returns the month containing t.
func PartitionOf(t time.Time) Partition {
	return Partition{Year: t.Year(), Month: t.Month()}
}

// Window is the inclusive range of partitions known to exist upstream.
type Window struct {
	First Partition
	Last  Partition
}

func (w Window) Validate() error {
	if w.First.IsZero() || w.Last.IsZero() {
		return fmt.Errorf("window bounds must be set")
	}
	if w.First.After(w.Last) {
		return fmt.Errorf("window start %s is after end %s", w.First, w.Last)
	}
	return nil
}

// Partitions lists every partition of the window in calendar order.
func (w Window) Partitions() []Partition {
	var out []Partition
	for p := w.First; !p.After(w.Last); p = p.Next() {
		out = append(out, p)
	}
	return out
}

func (w Window) String() string {
	return w.First.String() + ".." + w.Last.String()
}
