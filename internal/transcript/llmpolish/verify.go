package llmpolish

import (
	"slices"
	"strings"
)

// segment is one piece of the token-level diff between the raw transcript
// and the polished text. An anchor segment carries a single token common to
// both sides; a change segment carries the differing runs. strings.Fields
// never yields empty tokens, so anchor != "" discriminates.
type segment struct {
	anchor string
	raw    []string
	pol    []string
}

func (s segment) isAnchor() bool { return s.anchor != "" }

// diffSegments aligns the two token slices on their longest common
// subsequence and returns the texts as an ordered mix of anchor and change
// segments. The quadratic table is acceptable; utterances rarely exceed a
// few dozen tokens.
func diffSegments(raw, pol []string) []segment {
	m, n := len(raw), len(pol)
	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if raw[i-1] == pol[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else {
				table[i][j] = max(table[i-1][j], table[i][j-1])
			}
		}
	}

	// Backtrack; common positions come out back to front.
	type pair struct{ r, p int }
	anchors := make([]pair, 0, table[m][n])
	for i, j := m, n; i > 0 && j > 0; {
		switch {
		case raw[i-1] == pol[j-1]:
			anchors = append(anchors, pair{i - 1, j - 1})
			i--
			j--
		case table[i-1][j] >= table[i][j-1]:
			i--
		default:
			j--
		}
	}
	slices.Reverse(anchors)

	var segs []segment
	r, p := 0, 0
	for _, a := range anchors {
		if r < a.r || p < a.p {
			segs = append(segs, segment{raw: raw[r:a.r], pol: pol[p:a.p]})
		}
		segs = append(segs, segment{anchor: raw[a.r]})
		r, p = a.r+1, a.p+1
	}
	if r < m || p < n {
		segs = append(segs, segment{raw: raw[r:], pol: pol[p:]})
	}
	return segs
}

// canonToken lowercases and strips trailing punctuation so that "grafanna."
// still matches a correction declared as "grafanna".
func canonToken(s string) string {
	return strings.ToLower(strings.TrimRight(s, ".,;:!?\"')"))
}

// verifyPolishedText accepts the polished text only where the model's
// declared corrections account for the actual changes. Undeclared edits are
// reverted to the original tokens, so a chatty model cannot rewrite the
// utterance wholesale. Returns the vetted text and the corrections that
// really landed in it.
func verifyPolishedText(original, polished string, corrections []Correction) (string, []Correction) {
	if original == polished {
		return original, corrections
	}

	declared := make(map[[2]string]Correction, len(corrections))
	for _, c := range corrections {
		declared[[2]string{canonToken(c.Original), canonToken(c.Corrected)}] = c
	}

	var kept []string
	var confirmed []Correction
	for _, seg := range diffSegments(strings.Fields(original), strings.Fields(polished)) {
		if seg.isAnchor() {
			kept = append(kept, seg.anchor)
			continue
		}
		key := [2]string{
			canonToken(strings.Join(seg.raw, " ")),
			canonToken(strings.Join(seg.pol, " ")),
		}
		if c, ok := declared[key]; ok {
			kept = append(kept, seg.pol...)
			confirmed = append(confirmed, c)
		} else {
			kept = append(kept, seg.raw...)
		}
	}
	return strings.Join(kept, " "), confirmed
}
