package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, Params{Limit: DefaultLimit}, Params{}.Normalize())
	require.Equal(t, Params{Limit: MaxLimit, Offset: 0}, Params{Limit: 1000, Offset: -4}.Normalize())
	require.Equal(t, Params{Limit: 10, Offset: 20}, Params{Limit: 10, Offset: 20}.Normalize())
}

func TestLinks(t *testing.T) {
	base, err := url.Parse("http://api.local/api/v1/shops?limit=2")
	require.NoError(t, err)

	next, prev := Links(base, Params{Limit: 2}, 5)
	require.NotNil(t, next)
	require.Equal(t, "http://api.local/api/v1/shops?limit=2&offset=2", *next)
	require.Nil(t, prev)

	next, prev = Links(base, Params{Limit: 2, Offset: 2}, 5)
	require.Equal(t, "http://api.local/api/v1/shops?limit=2&offset=4", *next)
	require.Equal(t, "http://api.local/api/v1/shops?limit=2", *prev)

	next, prev = Links(base, Params{Limit: 2, Offset: 4}, 5)
	require.Nil(t, next)
	require.Equal(t, "http://api.local/api/v1/shops?limit=2&offset=2", *prev)

	next, prev = Links(nil, Params{}, 5)
	require.Nil(t, next)
	require.Nil(t, prev)
}
