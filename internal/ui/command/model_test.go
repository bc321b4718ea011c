package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]CommandMsg{
		"":                   {},
		"   ":                {},
		"refresh":            {Name: Refresh},
		"r":                  {Name: Refresh},
		"SYNC":               {Name: Refresh},
		"readall":            {Name: ReadAll},
		"read-all":           {Name: ReadAll},
		"archived":           {Name: Archived},
		"type medical_event": {Name: Type, Arg: "medical_event"},
		"  type   a   b ":    {Name: Type, Arg: "a b"},
		"q":                  {Name: Quit},
		"unknown thing":      {Name: "unknown", Arg: "thing"},
	}
	for line, want := range cases {
		assert.Equal(t, want, Parse(line), "line %q", line)
	}
}
