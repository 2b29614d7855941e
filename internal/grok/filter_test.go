package grok

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOverlyGeneric(t *testing.T) {
	tests := []struct {
		tmpl string
		want bool
	}{
		{`%{GREEDYDATA:message}`, true},
		{`^%{GREEDYDATA:data}$`, true},
		{`.*%{GREEDYDATA:rest}.*`, true},
		{`^%{LOG_TIME:log_time} %{MESSAGE:message}$`, true},
		{`%{LOG_TIME:ts}\s+%{MESSAGE:msg}`, true},
		{`^\[%{LOGLEVEL:level}\] %{MESSAGE:message}$`, true},
		{`^.*$`, true},
		{`%{IP:ip}`, true},
		{`%{IP} %{IP} %{WORD:action}`, true},
		{`%{IP:src} %{GREEDYDATA:msg}`, true},
		{`%{DATA:a} %{DATA:b} %{IP:src} %{IP:dst}`, true},
		{``, true},
		{`%{IP:src} -> %{IP:dst}`, false},
		{`%{IP:src} %{IP:dst} %{GREEDYDATA:msg}`, false},
		{`^%{SYSLOGTIMESTAMP:log_time} %{HOSTNAME:host} %{WORD:action} %{GREEDYDATA:msg}$`, false},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOverlyGeneric(tt.tmpl))
		})
	}
}

func TestSpecificityScore(t *testing.T) {
	assert.Equal(t, 0.0, SpecificityScore(`%{GREEDYDATA:message}`))
	assert.InDelta(t, 0.24, SpecificityScore(`%{IP:src} -> %{IP:dst}`), 1e-9)
	assert.InDelta(t, 0.18, SpecificityScore(`%{IP:src} %{IP:dst} %{GREEDYDATA:msg}`), 1e-9)

	parts := []string{`%{IP:src}`, `%{PORT:sport}`, `%{IP:dst}`, `%{PORT:dport}`}
	for i := 0; i < 8; i++ {
		parts = append(parts, `%{WORD:w}`)
	}
	rich := Normalize(strings.Join(parts, " "))
	assert.Equal(t, 1.0, SpecificityScore(rich))

	for _, tmpl := range []string{`%{IP:a} %{IP:b}`, `%{WORD:a} %{DATA:b} %{INT:c}`} {
		s := SpecificityScore(tmpl)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}
