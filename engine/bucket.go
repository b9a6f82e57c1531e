package engine

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// maxBucketFrames is how many frames contribute to a bucket key.
const maxBucketFrames = 6

// BucketKey derives the stable fault-bucket key "CTD-<16 hex>" from the
// exception code, fault module and leading frames. Inputs are trimmed,
// lower-cased and reduced to ASCII so the key survives locale and path
// casing differences between captures.
func BucketKey(code uint32, faultModule string, frames []string) string {
	var b strings.Builder
	b.WriteString("exc=0x")
	b.WriteString(strconv.FormatUint(uint64(code), 16))
	b.WriteString("|mod=")
	b.WriteString(canonicalToken(faultModule))
	for i, f := range frames {
		if i >= maxBucketFrames {
			break
		}
		fmt.Fprintf(&b, "|f%d=%s", i, canonicalToken(f))
	}

	h := fnv.New64a()
	h.Write([]byte(b.String()))
	return fmt.Sprintf("CTD-%016x", h.Sum64())
}

func canonicalToken(s string) string {
	s = strings.ToLower(strings.Trim(s, " \t\r\n"))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= 0x7F {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// BucketFrames picks the frames a bucket key is built from: display frames of
// the stack walk, else up to four candidate modules, else the fault site.
func BucketFrames(display []string, candidateModules []string, faultPlusOffset string) []string {
	switch {
	case len(display) > 0:
		return display[:min(len(display), maxBucketFrames)]
	case len(candidateModules) > 0:
		return candidateModules[:min(len(candidateModules), 4)]
	case faultPlusOffset != "":
		return []string{faultPlusOffset}
	}
	return nil
}
