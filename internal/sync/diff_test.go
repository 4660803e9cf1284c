package sync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffString(t *testing.T) {
	tests := []struct {
		name          string
		org, gh, base string
		want          FieldChange
	}{
		{"no change", "a", "a", "a", ChangeNone},
		{"org changed", "new", "a", "a", ChangeOrg},
		{"remote changed", "a", "new", "a", ChangeRemote},
		{"both changed differently", "x", "y", "a", ChangeBoth},
		{"both changed to same value", "x", "x", "a", ChangeOrg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, diffString(tt.org, tt.gh, tt.base))
		})
	}
}

func TestDiffSet_OrderInsensitive(t *testing.T) {
	assert.Equal(t, ChangeNone, diffSet(
		[]string{"a", "b"}, []string{"b", "a"}, []string{"a", "b"}))
	assert.Equal(t, ChangeBoth, diffSet(
		[]string{"a"}, []string{"b"}, []string{"c"}))
}

func TestCanonicalBody(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"trailing spaces stripped", "line one   \nline two\t\n", "line one\nline two\n"},
		{"final newline normalized", "text\n\n\n", "text\n"},
		{"missing final newline added", "text", "text\n"},
		{"crlf folded", "a\r\nb\r\n", "a\nb\n"},
		{"blank only", "   \n\t\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalBody(tt.in))
		})
	}
}

func TestDigestBody(t *testing.T) {
	d1 := DigestBody("Hello world")
	d2 := DigestBody("Hello world\n")
	d3 := DigestBody("Hello world  \n\n")
	d4 := DigestBody("Different")

	assert.True(t, strings.HasPrefix(d1, "sha256:"))
	// Canonicalization makes whitespace-only differences hash equal.
	assert.Equal(t, d1, d2)
	assert.Equal(t, d1, d3)
	assert.NotEqual(t, d1, d4)
}

func TestMergeLabels(t *testing.T) {
	tests := []struct {
		name          string
		org, gh, base []string
		want          []string
	}{
		{
			name: "additions on both sides survive",
			org:  []string{"a", "b"}, gh: []string{"b", "c"}, base: []string{"b"},
			want: []string{"a", "b", "c"},
		},
		{
			name: "one-sided removals win",
			org:  []string{"a", "b"}, gh: []string{"b", "c"}, base: []string{"a", "b", "c"},
			want: []string{"b"},
		},
		{
			name: "add on org, remove on remote",
			org:  []string{"y", "x"}, gh: nil, base: []string{"y"},
			want: []string{"x"},
		},
		{
			name: "all equal",
			org:  []string{"a"}, gh: []string{"a"}, base: []string{"a"},
			want: []string{"a"},
		},
		{
			name: "empty everything",
			org:  nil, gh: nil, base: nil,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeLabels(tt.org, tt.gh, tt.base))
		})
	}
}

func TestThreeWay_BodyUsesDigest(t *testing.T) {
	org := pairView{Body: "same text\n"}
	gh := pairView{Body: "same text"}
	d := threeWay(org, gh, pairView{}, DigestBody("same text"))
	assert.Equal(t, ChangeNone, d.Body)
}
