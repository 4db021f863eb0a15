package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAccepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "uppercase", in: "HTTPS://EXAMPLE.COM", want: "https://example.com"},
		{name: "path and query dropped", in: "https://example.com/path?q=1", want: "https://example.com"},
		{name: "fragment dropped", in: "http://example.com/#top", want: "http://example.com"},
		{name: "default https port stripped", in: "https://example.com:443", want: "https://example.com"},
		{name: "default http port stripped", in: "http://example.com:80/x", want: "http://example.com"},
		{name: "non default port kept", in: "https://example.com:8443", want: "https://example.com:8443"},
		{name: "https port on http kept", in: "http://example.com:443", want: "http://example.com:443"},
		{name: "zero padded http port", in: "http://example.com:080", want: "http://example.com"},
		{name: "zero padded https port", in: "https://example.com:0443", want: "https://example.com"},
		{name: "zero padded custom port", in: "https://example.com:08443", want: "https://example.com:8443"},
		{name: "highest port", in: "https://example.com:65535", want: "https://example.com:65535"},
		{name: "surrounding whitespace", in: "  https://example.com/a  ", want: "https://example.com"},
		{name: "subdomain", in: "https://Blog.Example.co.uk/post/1", want: "https://blog.example.co.uk"},
		{name: "userinfo dropped", in: "https://user:pw@example.com", want: "https://example.com"},
		{name: "punycode", in: "https://xn--e1afmkfd.xn--p1ai", want: "https://xn--e1afmkfd.xn--p1ai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "blank", in: "   "},
		{name: "no scheme", in: "example.com"},
		{name: "ftp scheme", in: "ftp://example.com"},
		{name: "no host", in: "https://"},
		{name: "no dot", in: "https://goo"},
		{name: "localhost", in: "http://localhost:8080"},
		{name: "empty tld", in: "https://example."},
		{name: "one char tld", in: "https://example.a"},
		{name: "missing colon", in: "http//example.com"},
		{name: "missing colon https", in: "https//example.com"},
		{name: "opaque", in: "http:example.com"},
		{name: "empty label", in: "https://example..com"},
		{name: "underscore", in: "https://bad_host.example.com"},
		{name: "bad port", in: "https://example.com:port"},
		{name: "port zero", in: "https://example.com:0"},
		{name: "port above range", in: "https://example.com:99999"},
		{name: "port 65536", in: "http://example.com:65536"},
		{name: "too long", in: "https://" + strings.Repeat("a", 250) + ".com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.in)
			require.Error(t, err)
			require.Empty(t, got)
			require.True(t, IsValidationError(err))
		})
	}
}

func TestNormalizeLengthLimit(t *testing.T) {
	t.Parallel()

	host := strings.Repeat("a", MaxURLLength-len("https://")-len(".com"))
	exact := "https://" + host + ".com"
	require.Len(t, exact, MaxURLLength)

	got, err := Normalize(exact)
	require.NoError(t, err)
	require.Equal(t, exact, got)

	_, err = Normalize(exact + "/")
	require.Error(t, err)
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTPS://EXAMPLE.COM",
		"https://example.com/path?q=1#frag",
		"https://example.com:443",
		"http://Example.org:8080/a/b",
		"http://example.com:080",
		"https://example.com:00443",
	}
	for _, in := range inputs {
		once, err := Normalize(in)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		require.Equal(t, once, twice)

		rest := strings.TrimPrefix(strings.TrimPrefix(once, "https://"), "http://")
		require.NotContains(t, rest, "/")
		require.NotContains(t, rest, "?")
		require.NotContains(t, rest, "#")
	}
}

func TestNormalizeSameOriginDeduplicates(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"http://example.com", "http://example.com:80", "http://example.com:080", "HTTP://EXAMPLE.COM:0080/x"} {
		got, err := Normalize(in)
		require.NoError(t, err)
		require.Equal(t, "http://example.com", got, in)
	}

	_, err := Normalize("https://example.com:99999")
	require.EqualError(t, err, "invalid url: port must be between 1 and 65535")
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	_, err := Normalize("ftp://example.com")
	require.EqualError(t, err, "invalid url: scheme must be http or https")
}
