package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/echohq/echo-agent/internal/types"
)

func TestShouldEscalate(t *testing.T) {
	tests := []struct {
		name     string
		priority float64
		category types.Category
		want     bool
	}{
		{"high priority general", 0.9, types.CategoryGeneral, true},
		{"low priority bug", 0.3, types.CategoryBug, true},
		{"low priority feature request", 0.1, types.CategoryFeatureRequest, true},
		{"low priority general", 0.2, types.CategoryGeneral, false},
		{"low priority question", 0.5, types.CategoryQuestion, false},
		{"exactly at threshold", 0.7, types.CategoryQuestion, true},
		{"just below threshold", 0.699, types.CategoryGeneral, false},
		{"zero priority bug", 0, types.CategoryBug, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldEscalate(tt.priority, tt.category))
		})
	}
}
