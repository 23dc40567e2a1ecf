package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// defaultBodyLimit caps request bodies when the configured limit cannot be
// parsed.
const defaultBodyLimit = 1 << 20

var sizeSuffixes = []struct {
	suffix string
	factor int64
}{
	{"GB", 1 << 30},
	{"G", 1 << 30},
	{"MB", 1 << 20},
	{"M", 1 << 20},
	{"KB", 1 << 10},
	{"K", 1 << 10},
}

// BodyLimit rejects request bodies larger than the given size ("512K", "2M",
// "1G"). Requests that declare an oversized Content-Length are refused before
// the handler runs; chunked uploads are cut off as soon as the budget is
// spent.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > maxBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body exceeds the allowed size")
			}
			req.Body = newLimitedBody(req.Body, maxBytes)
			return next(c)
		}
	}
}

// limitedBody hands out at most max+1 bytes; touching the extra byte means
// the caller went over budget.
type limitedBody struct {
	inner io.ReadCloser
	lr    io.LimitedReader
}

func newLimitedBody(rc io.ReadCloser, max int64) *limitedBody {
	return &limitedBody{
		inner: rc,
		lr:    io.LimitedReader{R: rc, N: max + 1},
	}
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.lr.Read(p)
	if b.lr.N <= 0 {
		return n, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body exceeds the allowed size")
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.inner.Close()
}

// parseLimit turns a human-readable size such as "512K" or "10MB" into a
// byte count. Unparseable input falls back to 1MB rather than failing, so a
// bad config value tightens the limit instead of removing it.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	factor := int64(1)
	for _, u := range sizeSuffixes {
		if strings.HasSuffix(s, u.suffix) {
			factor = u.factor
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return defaultBodyLimit
	}
	return n * factor
}
