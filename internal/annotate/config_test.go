package annotate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"go-live-slides/internal/dom"
)

func TestParseLineList(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int
		wantErr int
	}{
		{"single", "3", []int{3}, 0},
		{"list", "1,2,10", []int{1, 2, 10}, 0},
		{"whitespace and empty entries", " 4 ,, 5 ,", []int{4, 5}, 0},
		{"duplicates keep first position", "5,3,5", []int{5, 3}, 0},
		{"leading zero is base 10", "010", []int{10}, 0},
		{"non numeric", "a,2,3b", []int{2}, 2},
		{"out of range", "0,-2,1", []int{1}, 2},
		{"empty", "", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLineList(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Len(t, multierr.Errors(err), tt.wantErr)
		})
	}
}

func TestParseSlideConfig(t *testing.T) {
	root, err := dom.ParseFragment(strings.NewReader(
		`<div class="step" data-reveal="1" data-emphasize-lines="1,x" data-step-lines="2" data-keep-linenos></div>`))
	require.NoError(t, err)

	cfg, err := ParseSlideConfig(root.FirstChild)
	require.Error(t, err)
	assert.Contains(t, err.Error(), AttrEmphasizeLines)
	assert.Equal(t, SlideConfig{
		EmphasizeLines: []int{1},
		StepLines:      []int{2},
		KeepLinenos:    true,
		Reveal:         true,
	}, cfg)
}

func TestClearLinenos(t *testing.T) {
	assert.True(t, SlideConfig{}.ClearLinenos(true))
	assert.False(t, SlideConfig{}.ClearLinenos(false))
	assert.False(t, SlideConfig{KeepLinenos: true}.ClearLinenos(true))
	assert.True(t, SlideConfig{KillLinenos: true, KeepLinenos: true}.ClearLinenos(false))
}
