package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialableHost(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want string
	}{
		{name: "port only", addr: ":8080", want: "localhost:8080"},
		{name: "explicit host", addr: "10.1.2.3:9090", want: "10.1.2.3:9090"},
		{name: "wildcard ipv4", addr: "0.0.0.0:8080", want: "localhost:8080"},
		{name: "wildcard ipv6", addr: "[::]:8080", want: "localhost:8080"},
		{name: "ipv6 loopback keeps brackets", addr: "[::1]:8080", want: "[::1]:8080"},
		{name: "surrounding whitespace", addr: "  :7070 ", want: "localhost:7070"},
		{name: "empty falls back to default", addr: "", want: "localhost:8080"},
		{name: "unsplittable passes through", addr: "localhost", want: "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dialableHost(tt.addr))
		})
	}
}
