package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavigate(t *testing.T) {
	msg := Navigate(RouteHistory, "msr")()
	assert.Equal(t, RouterMsg{To: RouteHistory, Task: "msr"}, msg)
	assert.Equal(t, "history", RouteHistory.String())
}
