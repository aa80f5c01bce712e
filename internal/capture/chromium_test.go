package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	o := Options{}
	assert.Error(t, o.normalize())

	o = Options{URL: "http://127.0.0.1:8080/calendar"}
	assert.Error(t, o.normalize())

	o = Options{URL: "http://127.0.0.1:8080/calendar", OutputPath: "out.png"}
	require.NoError(t, o.normalize())
	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, DefaultTimeout, o.Timeout)
}

func TestAuthHeader(t *testing.T) {
	assert.Nil(t, Options{}.authHeader())
	h := Options{Username: "admin", Password: "admin"}.authHeader()
	assert.Equal(t, "Basic YWRtaW46YWRtaW4=", h["Authorization"])
}

func TestCalendarPNGValidatesBeforeLaunch(t *testing.T) {
	err := CalendarPNG(context.Background(), Options{OutputPath: "x.png"})
	assert.ErrorContains(t, err, "URL is required")
}
