package namespace_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kandobyte/mcpbox/pkg/namespace"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct{ server, name string }{
		{"mock", "echo"},
		{"mock", "add"},
		{"a", "x"},
		{"b", "x"},
		{"svc", "weird__name__with__seps"},
		{"svc", ""},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%s/%s", c.server, c.name), func(t *testing.T) {
			encoded := namespace.Encode(c.server, c.name)
			assert.Equal(t, c.name, namespace.Strip(c.server, encoded))
			assert.Equal(t, c.server, namespace.Decode(encoded))
		})
	}
}

func TestDecodeNotNamespaced(t *testing.T) {
	assert.Equal(t, "", namespace.Decode("nonamespace"))
	assert.Equal(t, "", namespace.Decode("__leadingsep"))
	assert.Equal(t, "", namespace.Decode(""))
}

func TestCollisionFreedom(t *testing.T) {
	a := namespace.Encode("a", "x")
	b := namespace.Encode("b", "x")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "a__x", a)
	assert.Equal(t, "b__x", b)
}
