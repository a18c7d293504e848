package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHTML(t *testing.T) {
	assert.Equal(t, "hello", SanitizeHTML("  hello  "))
	assert.Equal(t, "<b>bold</b>", SanitizeHTML("<b>bold</b>"))
	assert.Equal(t, "hi", SanitizeHTML(`hi<script>alert(1)</script>`))
	assert.NotContains(t, SanitizeHTML(`<a href="#" onclick="x()">l</a>`), "onclick")
}
