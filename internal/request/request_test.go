package request

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRaw(t *testing.T) {
	t.Run("reads at most limit bytes", func(t *testing.T) {
		r := strings.NewReader("GET /index.html HTTP/1.1\r\n\r\n")
		raw, err := ReadRaw(r, 8)
		require.NoError(t, err)
		assert.Equal(t, "GET /ind", string(raw))
	})

	t.Run("single read only", func(t *testing.T) {
		r := iotest.OneByteReader(strings.NewReader("GET / HTTP/1.1\r\n"))
		raw, err := ReadRaw(r, 1024)
		require.NoError(t, err)
		assert.Equal(t, "G", string(raw))
	})

	t.Run("eof with no data is an empty request", func(t *testing.T) {
		_, err := ReadRaw(strings.NewReader(""), 1024)
		assert.ErrorIs(t, err, ErrEmptyRequest)
	})

	t.Run("data returned with eof is kept", func(t *testing.T) {
		r := iotest.DataErrReader(strings.NewReader("GET /a HTTP/1.0"))
		raw, err := ReadRaw(r, 1024)
		require.NoError(t, err)
		assert.Equal(t, "GET /a HTTP/1.0", string(raw))
	})

	t.Run("read failure propagates", func(t *testing.T) {
		boom := errors.New("connection reset by peer")
		_, err := ReadRaw(iotest.ErrReader(boom), 1024)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := ReadRaw(strings.NewReader("x"), 0)
		require.Error(t, err)
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		limit      int
		wantMethod string
		wantPath   string
		wantErr    error
	}{
		{
			name:       "standard request line",
			raw:        "GET /index.html HTTP/1.1\r\nHost: example\r\n\r\n",
			wantMethod: "GET",
			wantPath:   "/index.html",
		},
		{
			name:       "method is not checked",
			raw:        "POST /upload HTTP/1.1\r\n\r\n",
			wantMethod: "POST",
			wantPath:   "/upload",
		},
		{
			name:       "no version token",
			raw:        "GET /a.png\r\n",
			wantMethod: "GET",
			wantPath:   "/a.png",
		},
		{
			name:       "unterminated short line",
			raw:        "GET /a.png",
			wantMethod: "GET",
			wantPath:   "/a.png",
		},
		{
			name:       "bare LF terminator and extra spaces",
			raw:        "GET    /x   HTTP/1.0\nHost: h\n\n",
			wantMethod: "GET",
			wantPath:   "/x",
		},
		{
			name:       "tabs separate tokens",
			raw:        "GET\t/tab\tHTTP/1.1\r\n",
			wantMethod: "GET",
			wantPath:   "/tab",
		},
		{
			name:    "single token",
			raw:     "GET\r\n\r\n",
			wantErr: ErrMalformedRequestLine,
		},
		{
			name:    "path only on second line does not count",
			raw:     "GET\r\n/index.html HTTP/1.1\r\n",
			wantErr: ErrMalformedRequestLine,
		},
		{
			name:    "blank first line",
			raw:     "\r\nGET / HTTP/1.1\r\n",
			wantErr: ErrMalformedRequestLine,
		},
		{
			name:    "whitespace only",
			raw:     "   \r\n",
			wantErr: ErrMalformedRequestLine,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: ErrEmptyRequest,
		},
		{
			name:    "full buffer without terminator",
			raw:     "GET /" + strings.Repeat("a", 59),
			limit:   64,
			wantErr: ErrRequestLineTooLong,
		},
		{
			name:       "full buffer with terminator is fine",
			raw:        "GET /b HTTP/1.1\r\n" + strings.Repeat("h", 47),
			limit:      64,
			wantMethod: "GET",
			wantPath:   "/b",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			limit := tc.limit
			if limit == 0 {
				limit = 1024
			}
			req, err := Parse([]byte(tc.raw), limit)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, req)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantMethod, req.Method)
			assert.Equal(t, tc.wantPath, req.Path)
		})
	}
}

func TestReadRawThenParse(t *testing.T) {
	long := "GET /" + strings.Repeat("z", 2000) + " HTTP/1.1\r\n\r\n"
	raw, err := ReadRaw(strings.NewReader(long), 1024)
	require.NoError(t, err)
	require.Len(t, raw, 1024)

	_, err = Parse(raw, 1024)
	assert.ErrorIs(t, err, ErrRequestLineTooLong)
}
