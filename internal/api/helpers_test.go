package api

import (
	"io"
	"strconv"
	"testing"

	xglog "github.com/ManuGH/videocat/internal/log"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func reconfigureLogs(t *testing.T, w io.Writer) {
	t.Helper()
	xglog.Reconfigure(xglog.Config{Level: "debug", Output: w})
	t.Cleanup(func() { xglog.Reconfigure(xglog.Config{Level: "info", Output: io.Discard}) })
}
