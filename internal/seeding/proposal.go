package seeding

import (
	"fmt"
	"math/bits"
	"math/rand/v2"
)

// Pair is one first-level match of a proposal. An empty Second is a bye.
type Pair struct {
	First  string `json:"first"`
	Second string `json:"second,omitempty"`
}

// Proposal is an untrusted first-level bracket structure
type Proposal struct {
	Matches []Pair `json:"matches"`
}

// Entrants counts the filled slots
func (p Proposal) Entrants() int {
	n := 0
	for _, m := range p.Matches {
		if m.First != "" {
			n++
		}
		if m.Second != "" {
			n++
		}
	}
	return n
}

// Report lists what the repair pass changed
type Report struct {
	Kept       int      `json:"kept"`
	Unknown    []string `json:"unknown,omitempty"`
	Duplicates []string `json:"duplicates,omitempty"`
	Inserted   []string `json:"inserted,omitempty"`
	Paired     []Pair   `json:"paired,omitempty"`
	Split      []Pair   `json:"split,omitempty"`
}

// Usable reports whether the proposal carried any valid placement
func (r Report) Usable() bool {
	return r.Kept > 0
}

// Notes renders the report as human readable lines
func (r Report) Notes() []string {
	var notes []string
	for _, id := range r.Unknown {
		notes = append(notes, fmt.Sprintf("dropped unknown competitor %s", id))
	}
	for _, id := range r.Duplicates {
		notes = append(notes, fmt.Sprintf("dropped repeated slot for %s", id))
	}
	for _, id := range r.Inserted {
		notes = append(notes, fmt.Sprintf("inserted omitted competitor %s", id))
	}
	for _, m := range r.Paired {
		notes = append(notes, fmt.Sprintf("paired byes of %s and %s", m.First, m.Second))
	}
	for _, m := range r.Split {
		notes = append(notes, fmt.Sprintf("split match %s vs %s", m.First, m.Second))
	}
	return notes
}

// Repair makes a proposal place every competitor exactly once. Unknown
// ids and repeated ids are dropped, emptied matches are removed, and
// each omitted competitor takes the first open second slot or opens a
// new match at the end. The result is then balanced to the 2^(R-1)
// first-level matches of a bracket with R = Rounds(n) levels. The input
// proposal is not modified.
func Repair(competitors []string, p Proposal) (Proposal, Report) {
	var report Report

	known := make(map[string]bool, len(competitors))
	for _, id := range competitors {
		known[id] = true
	}
	placed := make(map[string]bool, len(competitors))

	keep := func(id string) string {
		switch {
		case id == "":
			return ""
		case !known[id]:
			report.Unknown = append(report.Unknown, id)
			return ""
		case placed[id]:
			report.Duplicates = append(report.Duplicates, id)
			return ""
		}
		placed[id] = true
		report.Kept++
		return id
	}

	out := Proposal{Matches: make([]Pair, 0, len(p.Matches))}
	for _, m := range p.Matches {
		first, second := keep(m.First), keep(m.Second)
		if first == "" {
			first, second = second, ""
		}
		if first == "" {
			continue
		}
		out.Matches = append(out.Matches, Pair{First: first, Second: second})
	}

	for _, id := range competitors {
		if placed[id] {
			continue
		}
		placed[id] = true
		report.Inserted = append(report.Inserted, id)

		open := -1
		for i, m := range out.Matches {
			if m.Second == "" {
				open = i
				break
			}
		}
		if open >= 0 {
			out.Matches[open].Second = id
		} else {
			out.Matches = append(out.Matches, Pair{First: id})
		}
	}

	if len(competitors) >= 2 {
		out.Matches = balance(out.Matches, 1<<(Rounds(len(competitors))-1), &report)
	}
	return out, report
}

// balance brings matches to exactly target entries. With n entrants and
// target = 2^(R-1) there are 2*len - n byes: too many matches always
// leaves two byes to pair, too few always leaves a full match to split.
func balance(matches []Pair, target int, report *Report) []Pair {
	for len(matches) > target {
		first, last := -1, -1
		for i, m := range matches {
			if m.Second != "" {
				continue
			}
			if first < 0 {
				first = i
			}
			last = i
		}
		if first == last {
			break
		}
		matches[first].Second = matches[last].First
		report.Paired = append(report.Paired, matches[first])
		matches = append(matches[:last], matches[last+1:]...)
	}

	for len(matches) < target {
		full := -1
		for i := len(matches) - 1; i >= 0; i-- {
			if matches[i].Second != "" {
				full = i
				break
			}
		}
		if full < 0 {
			break
		}
		m := matches[full]
		report.Split = append(report.Split, m)
		matches[full] = Pair{First: m.First}
		matches = append(matches[:full+1], append([]Pair{{First: m.Second}}, matches[full+1:]...)...)
	}
	return matches
}

// Rounds returns ceil(log2(n)), the number of levels of a
// single-elimination bracket for n entrants
func Rounds(n int) int {
	if n < 2 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Fallback builds a single-elimination first level by shuffling the
// competitors and pairing them in order. With R = Rounds(n) the level
// holds 2^(R-1) matches of which 2^R - n are explicit byes, so every
// later level is full and the bracket has exactly R levels.
func Fallback(competitors []string, rng *rand.Rand) Proposal {
	n := len(competitors)
	if n == 0 {
		return Proposal{}
	}
	if n == 1 {
		return Proposal{Matches: []Pair{{First: competitors[0]}}}
	}

	shuffled := append([]string(nil), competitors...)
	rng.Shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	rounds := Rounds(n)
	size := 1 << rounds
	matches := size / 2

	bye := make([]bool, matches)
	for i, remaining := 0, size-n; remaining > 0; i++ {
		// spread byes over even slots first, then odd ones
		slot := 2 * i
		if slot >= matches {
			slot = 2*(i-(matches+1)/2) + 1
		}
		bye[slot] = true
		remaining--
	}

	out := Proposal{Matches: make([]Pair, 0, matches)}
	next := 0
	for i := 0; i < matches; i++ {
		pair := Pair{First: shuffled[next]}
		next++
		if !bye[i] {
			pair.Second = shuffled[next]
			next++
		}
		out.Matches = append(out.Matches, pair)
	}
	return out
}
