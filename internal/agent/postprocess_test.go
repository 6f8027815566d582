package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single citation", "The claim is false [1].", "The claim is false."},
		{"grouped citations", "Confirmed [2, 3] by NASA [4-6] and ESA [7–9].", "Confirmed by NASA and ESA."},
		{"adjacent citations", "True[1][2] overall.", "True overall."},
		{"double quotes", `"The study" says “otherwise”.`, "The study says otherwise."},
		{"wrapping single quotes", "'Mostly accurate.'", "Mostly accurate."},
		{"apostrophes kept", "It's the agency's data.", "It's the agency's data."},
		{"whitespace collapsed", "  True.\n\nSee   NASA.  ", "True. See NASA."},
		{"non-numeric brackets kept", "Use [sic] carefully.", "Use [sic] carefully."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanReply(tt.input, 250))
		})
	}
}

func TestCleanReply_RespectsCap(t *testing.T) {
	input := strings.Repeat("Accurate per multiple sources [1]. ", 20)
	for limit := 1; limit <= 250; limit += 7 {
		got := CleanReply(input, limit)
		assert.LessOrEqual(t, len([]rune(got)), limit)
		assert.NotContains(t, got, "[1]")
	}
}
