package corrector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     fieldRef
		ok       bool
	}{
		{
			"path with element type",
			"/SIU_S12/SCH/SCH.2/EI.4",
			fieldRef{Segment: "SCH", Field: 2, Component: 4, Element: "EI.4"},
			true,
		},
		{
			"path without element type",
			"/REF_I12/MSH/MSH.9",
			fieldRef{Segment: "MSH", Field: 9},
			true,
		},
		{
			"nested path keeps the last field",
			"/SIU_S12/PV1/PV1.3/HD.3",
			fieldRef{Segment: "PV1", Field: 3, Component: 3, Element: "HD.3"},
			true,
		},
		{
			"dash notation with component",
			"SCH-6.3",
			fieldRef{Segment: "SCH", Field: 6, Component: 3},
			true,
		},
		{
			"dash notation without component",
			"SCH-2",
			fieldRef{Segment: "SCH", Field: 2},
			true,
		},
		{
			"bare element",
			"EI.4",
			fieldRef{Component: 4, Element: "EI.4"},
			true,
		},
		{
			"no location at all",
			"somewhere in the message",
			fieldRef{},
			false,
		},
		{
			"empty",
			"",
			fieldRef{},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLocation(tt.location)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFieldRef(t *testing.T) {
	ref := fieldRef{Segment: "SCH", Field: 6, Component: 3}
	assert.Equal(t, "SCH.6", ref.Parent())
	assert.Equal(t, "SCH-6.3", ref.Key())

	assert.Equal(t, "SCH-2", fieldRef{Segment: "SCH", Field: 2}.Key())
	assert.Empty(t, fieldRef{Element: "EI.4", Component: 4}.Parent())
	assert.Empty(t, fieldRef{Element: "EI.4", Component: 4}.Key())
}
