// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semver

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// versionText draws a valid version string, optionally with a leading "v",
// fewer than three core components, prerelease and build identifiers.
func versionText(t *rapid.T) string {
	var b strings.Builder
	if rapid.Bool().Draw(t, "prefix") {
		b.WriteString(rapid.SampledFrom([]string{"v", "V"}).Draw(t, "v"))
	}
	n := rapid.IntRange(1, 3).Draw(t, "coreLen")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(rapid.StringMatching(`0|[1-9][0-9]{0,3}`).Draw(t, "core"))
	}
	ident := rapid.StringMatching(`[0-9]{1,3}|[a-zA-Z][a-zA-Z0-9]{0,5}`)
	if pre := rapid.SliceOfN(ident, 0, 3).Draw(t, "pre"); len(pre) > 0 {
		b.WriteString("-" + strings.Join(pre, "."))
	}
	if build := rapid.SliceOfN(ident, 0, 2).Draw(t, "build"); len(build) > 0 {
		b.WriteString("+" + strings.Join(build, "."))
	}
	return b.String()
}

func TestProperty_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := versionText(t)
		v, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", text, err)
		}
		back, err := Parse(v.String())
		if err != nil {
			t.Fatalf("Parse(String()) error = %v", err)
		}
		if !back.StrictEqual(v) {
			t.Fatalf("round trip of %q: %s != %s", text, back, v)
		}
		if back.String() != v.String() {
			t.Fatalf("canonical form not stable: %q vs %q", back.String(), v.String())
		}
	})
}

func TestProperty_OrderingIsTotal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := MustParse(versionText(t))
		b := MustParse(versionText(t))

		ab, ba := a.Compare(b), b.Compare(a)
		if ab != -ba {
			t.Fatalf("antisymmetry broken: %s vs %s gives %d and %d", a, b, ab, ba)
		}
		holds := 0
		if a.LessThan(b) {
			holds++
		}
		if a.Equal(b) {
			holds++
		}
		if b.LessThan(a) {
			holds++
		}
		if holds != 1 {
			t.Fatalf("%d of <, ==, > hold for %s and %s", holds, a, b)
		}
	})
}

func TestProperty_OrderingIsTransitive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := MustParse(versionText(t))
		b := MustParse(versionText(t))
		c := MustParse(versionText(t))
		if a.Compare(b) <= 0 && b.Compare(c) <= 0 && a.Compare(c) > 0 {
			t.Fatalf("transitivity broken: %s <= %s <= %s but %s > %s", a, b, c, a, c)
		}
	})
}

func TestProperty_ReleaseAbovePrerelease(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := MustParse(versionText(t))
		if v.IsPrerelease() && !v.LessThan(v.Core()) {
			t.Fatalf("%s should sort below %s", v, v.Core())
		}
	})
}
