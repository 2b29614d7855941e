package grok

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty field name",
			in:   `%{IP:} %{WORD:action}`,
			want: `%{IP} %{WORD:action}`,
		},
		{
			name: "empty type annotation",
			in:   `%{IP:src:} %{INT:count:int}`,
			want: `%{IP:src} %{INT:count:int}`,
		},
		{
			name: "duplicate field names",
			in:   `%{IP:ip} %{IP:ip} %{IP:ip}`,
			want: `%{IP:ip} %{IP:ip_1} %{IP:ip_2}`,
		},
		{
			name: "duplicate skips taken suffix",
			in:   `%{WORD:f} %{WORD:f_1} %{WORD:f}`,
			want: `%{WORD:f} %{WORD:f_1} %{WORD:f_2}`,
		},
		{
			name: "redundant inner group",
			in:   `%{IP:src} (?<action>(allow|deny))`,
			want: `%{IP:src} (?<action>allow|deny)`,
		},
		{
			name: "missing name delimiter",
			in:   `%{IP:src} (?<port\d+)`,
			want: `%{IP:src} (?<port>\d+)`,
		},
		{
			name: "named group inside brackets with star",
			in:   `[(?<log_name>fw4_deny)]* %{IP:src} %{IP:dst}`,
			want: `\[fw4_deny\] %{IP:src} %{IP:dst}`,
		},
		{
			name: "named group inside brackets",
			in:   `x[(?<tag>alert)] %{IP:src}`,
			want: `x\[alert\] %{IP:src}`,
		},
		{
			name: "adjacent bracket groups",
			in:   `[(?<a>x)][(?<b>y)]`,
			want: `\[x\]\[y\]`,
		},
		{
			name: "lookbehind untouched",
			in:   `(?<![0-9])%{INT:n} (?<=:)%{WORD:w}`,
			want: `(?<![0-9])%{INT:n} (?<=:)%{WORD:w}`,
		},
		{
			name: "clean template unchanged",
			in:   `^%{SYSLOGTIMESTAMP:log_time} %{IPORHOST:device_name} %{WORD:action}$`,
			want: `^%{SYSLOGTIMESTAMP:log_time} %{IPORHOST:device_name} %{WORD:action}$`,
		},
		{
			name: "empty input",
			in:   ``,
			want: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "normalize must be idempotent")
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		`%{IP:} %{IP:src:} %{IP:src} %{IP:src}`,
		`(?<n(x))`,
		`(?<a>(?<b>(x)))`,
		`(?<a>((x)))`,
		`[(?<a>(?<b>c)] %{WORD:w} %{WORD:w}`,
		`%{WORD:w} %{WORD:w_1} %{WORD:w} %{WORD:w_1}`,
		`%{P::} %{P::int} %{P:x::}`,
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeCompiledPattern(t *testing.T) {
	in := `^(?<src>([0-9.]+)) (?<dst>(?:[0-9.]+))$`
	want := `^(?<src>[0-9.]+) (?<dst>(?:[0-9.]+))$`
	assert.Equal(t, want, NormalizeCompiledPattern(in))
	assert.Equal(t, want, NormalizeCompiledPattern(want))
}

func TestExplicitFields(t *testing.T) {
	fields := ExplicitFields(`%{IP:src} %{INT} %{WORD:} (?<raw>x) %{IP:dst:string}`)
	assert.Equal(t, []string{"src", "dst"}, fields)
	assert.Empty(t, ExplicitFields(`%{GREEDYDATA}`))
}
