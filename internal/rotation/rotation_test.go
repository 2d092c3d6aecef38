package rotation

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	endpoints, err := Parse([]string{
		"https://Nitter.net/",
		"https://xcancel.com",
		"https://nitter.net",
		"https://nitter.space:443/",
	})
	require.NoError(t, err)
	require.Equal(t, []Endpoint{
		"https://nitter.net",
		"https://xcancel.com",
		"https://nitter.space",
	}, endpoints)
}

func TestParseInvalid(t *testing.T) {
	testCases := []struct {
		name      string
		addresses []string
	}{
		{"empty", nil},
		{"scheme", []string{"ftp://nitter.net"}},
		{"host", []string{"https://"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.addresses)
			require.Error(t, err)
		})
	}
}

func TestAdvanceWraps(t *testing.T) {
	endpoints := []Endpoint{"https://a.example", "https://b.example", "https://c.example"}
	state, err := New(endpoints)
	require.NoError(t, err)

	for k := 0; k < 2*len(endpoints)+1; k++ {
		require.Equal(t, endpoints[k%len(endpoints)], state.Current())
		require.Equal(t, k%len(endpoints), state.Cursor())
		state.Advance()
	}

	state.Reset()
	require.Equal(t, 0, state.Cursor())
	require.Equal(t, endpoints, state.All())
}

func TestSingleEndpoint(t *testing.T) {
	state, err := New([]Endpoint{"https://only.example"})
	require.NoError(t, err)
	require.Equal(t, Endpoint("https://only.example"), state.Advance())
	require.Equal(t, 0, state.Cursor())
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestStateOwnsEndpoints(t *testing.T) {
	endpoints := []Endpoint{"https://a.example", "https://b.example"}
	state, err := New(endpoints)
	require.NoError(t, err)
	endpoints[0] = "https://mutated.example"
	state.All()[1] = "https://mutated.example"
	require.Equal(t, []Endpoint{"https://a.example", "https://b.example"}, state.All())
}

func TestPage(t *testing.T) {
	e := Endpoint("https://nitter.net")
	require.Equal(t, "https://nitter.net/jack", e.Page("/jack", nil))
	require.Equal(
		t,
		"https://nitter.net/search?f=tweets&q=go+lang",
		e.Page("/search", url.Values{"f": {"tweets"}, "q": {"go lang"}}),
	)
}
