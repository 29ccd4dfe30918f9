// Package ansi provides small helpers for stripping terminal control
// sequences from text before it is fed to line-oriented consumers such
// as the pattern matcher, and for stripping a fixed set of SGR
// parameters from a captured pane snapshot.
package ansi

import "regexp"

// controlSeq matches CSI sequences (ESC [ ... final byte), OSC
// sequences terminated by BEL or ST, and bare single-character ESC
// sequences. It deliberately does not try to be a full VT100 grammar —
// only enough to keep pattern-matching from tripping over cursor moves,
// clears, and color codes embedded in a line.
var controlSeq = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[a-zA-Z]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[a-zA-Z0-9])`)

// Strip removes ANSI/VT control sequences from s, leaving the plain text
// content intended for pattern matching.
func Strip(s string) string {
	return controlSeq.ReplaceAllString(s, "")
}

// sgrParam matches a single CSI SGR (`m`-terminated) sequence so its
// parameters can be filtered individually.
var sgrParam = regexp.MustCompile(`\x1b\[([0-9;]*)m`)

// strippedSGRParams is the set named in SPEC_FULL.md §6: background
// color and reverse-video parameters removed from an external pane
// snapshot while foreground styling is preserved.
var strippedSGRParams = map[string]bool{
	"49": true, "7": true, "27": true,
}

func isBackgroundParam(p string) bool {
	if strippedSGRParams[p] {
		return true
	}
	n := 0
	for _, c := range p {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	switch {
	case n >= 40 && n <= 47:
		return true
	case n >= 100 && n <= 107:
		return true
	}
	return false
}

// StripBackgroundSGR removes background-color and reverse-video SGR
// parameters (40-47, 100-107, 48;5;N, 48;2;R;G;B, 7, 27, 49) from an
// ANSI-formatted pane snapshot while leaving foreground styling intact,
// per SPEC_FULL.md's tmux capture-pane contract.
func StripBackgroundSGR(s string) string {
	return sgrParam.ReplaceAllStringFunc(s, func(seq string) string {
		m := sgrParam.FindStringSubmatch(seq)
		if m == nil {
			return seq
		}
		params := splitParams(m[1])
		kept := params[:0]
		for i := 0; i < len(params); i++ {
			p := params[i]
			if p == "48" && i+1 < len(params) {
				// 48;5;N or 48;2;R;G;B — an extended background color;
				// skip this and its trailing components.
				if i+1 < len(params) && params[i+1] == "5" {
					i += 2
					continue
				}
				if i+1 < len(params) && params[i+1] == "2" {
					i += 4
					continue
				}
			}
			if isBackgroundParam(p) {
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			return ""
		}
		out := "\x1b["
		for i, p := range kept {
			if i > 0 {
				out += ";"
			}
			out += p
		}
		return out + "m"
	})
}

func splitParams(s string) []string {
	if s == "" {
		return []string{"0"}
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
