package pagination

import (
	"testing"
	"time"
)

type row struct {
	id string
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 123, time.UTC)
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: ts.Format(time.RFC3339Nano)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "42" || !cursor.Time().Equal(ts) {
		t.Fatalf("unexpected cursor %+v", cursor)
	}
}

func TestBuildCursorPageInfoTrimsExtraRow(t *testing.T) {
	rows := []*row{{id: "a"}, {id: "b"}, {id: "c"}}
	page, info := BuildCursorPageInfo(rows, 2, func(r *row) string { return r.id })

	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	if !info.HasMore || info.NextPageToken != "b" {
		t.Fatalf("unexpected page info %+v", info)
	}

	page, info = BuildCursorPageInfo(rows, 5, func(r *row) string { return r.id })
	if len(page) != 3 || info.HasMore || info.NextPageToken != "" {
		t.Fatalf("unexpected last page %+v", info)
	}
}

func TestPaginationSizeClamp(t *testing.T) {
	if got := (Pagination{}).Size(); got != DefaultPageSize {
		t.Fatalf("expected default size, got %d", got)
	}
	if got := (Pagination{PageSize: 1000}).Size(); got != MaxPageSize {
		t.Fatalf("expected max size, got %d", got)
	}
}
