package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePOStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"PO Received", "po received"},
		{"  po_received  ", "po received"},
		{"PO-RECEIVED", "po received"},
		{"po   received", "po received"},
		{"po\treceived", "po received"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizePOStatus(tt.input), "input %q", tt.input)
	}
}

func TestIsPOReceivedRaw(t *testing.T) {
	assert.False(t, IsPOReceivedRaw(nil))

	accepted := []string{
		"PO Received",
		"po_recieved",
		"PO-Recieve",
		"po recived",
	}
	for _, value := range accepted {
		v := value
		assert.True(t, IsPOReceivedRaw(&v), "value %q", value)
	}

	rejected := []string{
		"",
		"pending",
		"po pending",
		"received",
		"John Perera",
	}
	for _, value := range rejected {
		v := value
		assert.False(t, IsPOReceivedRaw(&v), "value %q", value)
	}
}

func TestIsDefaultStatus(t *testing.T) {
	assert.True(t, IsDefaultStatus(nil))

	empty := "   "
	assert.True(t, IsDefaultStatus(&empty))

	po := "PO Received"
	assert.True(t, IsDefaultStatus(&po))

	name := "John Perera"
	assert.False(t, IsDefaultStatus(&name))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "John Perera", NormalizeName("  John   Perera "))
	assert.Equal(t, "John Perera", NormalizeName("John\nPerera"))
	assert.Equal(t, "", NormalizeName("  \n "))
}

func TestSlugifyName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"John Perera", "john.perera"},
		{"  Anne-Marie O'Neil ", "anne.marie.o.neil"},
		{"N. S. Fernando", "n.s.fernando"},
		{"123", "123"},
		{"", "assignee"},
		{"!!!", "assignee"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SlugifyName(tt.input), "input %q", tt.input)
	}

	// Long names truncate to the email local part limit.
	long := SlugifyName("aaaaaaaaaa bbbbbbbbbb cccccccccc dddddddddd eeeeeeeeee")
	assert.LessOrEqual(t, len(long), 40)
}
