package history

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"circlemap/internal/types"
)

// ExportHeader is the column header of an exported history file.
var ExportHeader = []string{"date", "user_name", "address", "lat", "lon", "r1", "r2", "r3"}

// Export writes the log as gzip-compressed CSV to w. A non-empty nickname
// restricts the export to that nickname's records. It returns the number of
// data rows written.
func (s *Service) Export(ctx context.Context, w io.Writer, nickname string) (int, error) {
	recs, err := s.log.ReadAll(ctx)
	if err != nil {
		return 0, persistError("failed to read history", err)
	}

	zw := gzip.NewWriter(w)
	cw := csv.NewWriter(zw)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range recs {
		if nickname != "" && rec.Nickname != nickname {
			continue
		}
		if err := cw.Write(exportRow(rec)); err != nil {
			return n, err
		}
		n++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, err
	}
	return n, zw.Close()
}

func exportRow(rec types.HistoryRecord) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Nickname,
		rec.Address,
		f(rec.Lat),
		f(rec.Lon),
		f(rec.R1),
		f(rec.R2),
		f(rec.R3),
	}
}
