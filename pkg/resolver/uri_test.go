package resolver

import (
	"errors"
	"testing"

	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want FileRef
	}{
		{"group and port", "myth://Videos@alpha:6543/shows/a.mkv", FileRef{Group: "Videos", Host: "alpha", Port: 6543, Path: "shows/a.mkv"}},
		{"default group", "myth://alpha/a.mpg", FileRef{Group: "Default", Host: "alpha", Path: "a.mpg"}},
		{"ip host", "myth://Default@10.0.0.5/a.mpg", FileRef{Group: "Default", Host: "10.0.0.5", Path: "a.mpg"}},
		{"extra slashes", "myth://alpha//a.mpg", FileRef{Group: "Default", Host: "alpha", Path: "a.mpg"}},
		{"hash in name", "myth://Default@alpha/Episode #3.mpg", FileRef{Group: "Default", Host: "alpha", Path: "Episode #3.mpg"}},
		{"question mark in name", "myth://alpha/shows/What?.mpg", FileRef{Group: "Default", Host: "alpha", Path: "shows/What?.mpg"}},
		{"percent in name", "myth://alpha:6543/100%.mpg", FileRef{Group: "Default", Host: "alpha", Port: 6543, Path: "100%.mpg"}},
		{"escape kept literally", "myth://alpha/a%20b.mpg", FileRef{Group: "Default", Host: "alpha", Path: "a%20b.mpg"}},
		{"at sign in path", "myth://Videos@alpha/me@home.mpg", FileRef{Group: "Videos", Host: "alpha", Path: "me@home.mpg"}},
		{"empty group", "myth://@alpha/a.mpg", FileRef{Group: "Default", Host: "alpha", Path: "a.mpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"wrong scheme", "http://alpha/a.mpg"},
		{"missing host", "myth:///a.mpg"},
		{"missing path", "myth://alpha/"},
		{"port out of range", "myth://alpha:70000/a.mpg"},
		{"port zero", "myth://alpha:0/a.mpg"},
		{"parent reference", "myth://alpha/shows/../../etc/passwd"},
		{"malformed", "myth://alpha:port/a.mpg"},
		{"empty port", "myth://alpha:/a.mpg"},
		{"no path separator", "myth://alpha"},
		{"missing host after group", "myth://Videos@/a.mpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.uri)
			require.Error(t, err)
			assert.True(t, errors.Is(err, fserrors.ErrInvalidArgument), "got %v", err)

			var fe *fserrors.Error
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.uri, fe.Path)
		})
	}
}

func TestFileRefString(t *testing.T) {
	ref := FileRef{Group: "Videos", Host: "alpha", Port: 6543, Path: "shows/a.mkv"}
	assert.Equal(t, "myth://Videos@alpha:6543/shows/a.mkv", ref.String())

	parsed, err := Parse(ref.String())
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)

	assert.Equal(t, "myth://Default@alpha/a.mpg", FileRef{Group: "Default", Host: "alpha", Path: "a.mpg"}.String())

	odd := FileRef{Group: "Default", Host: "alpha", Path: "Episode #3 (100%)?.mpg"}
	parsed, err = Parse(odd.String())
	require.NoError(t, err)
	assert.Equal(t, odd, parsed)
}

func TestHostIsIP(t *testing.T) {
	assert.True(t, FileRef{Host: "192.168.1.10"}.HostIsIP())
	assert.False(t, FileRef{Host: "alpha"}.HostIsIP())
	assert.False(t, FileRef{Host: "::1"}.HostIsIP())
}
