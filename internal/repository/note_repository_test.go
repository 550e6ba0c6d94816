package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/go-kivik/kivik/v4/driver"
	"github.com/go-kivik/kivik/v4/mockdb"
)

// pagedRows adds the paging bookmark CouchDB returns with every _find page.
type pagedRows struct {
	driver.Rows
	bookmark string
}

func (r *pagedRows) Bookmark() string { return r.bookmark }

type findPage struct {
	ids      []int
	bookmark string
}

// expectPages makes the mock answer one _find call per page and records the
// query of each call.
func expectPages(t *testing.T, mock *mockdb.Client, userID string, pages []findPage) *[]map[string]interface{} {
	t.Helper()

	var queries []map[string]interface{}
	db := mock.NewDB()
	mock.ExpectDB().WithName("notes").WillReturn(db)

	for _, p := range pages {
		p := p
		db.ExpectFind().WillExecute(func(ctx context.Context, query interface{}, _ driver.Options) (driver.Rows, error) {
			raw, err := json.Marshal(query)
			if err != nil {
				return nil, err
			}
			var decoded map[string]interface{}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, err
			}
			queries = append(queries, decoded)

			rows := mockdb.NewRows()
			for _, id := range p.ids {
				doc := fmt.Sprintf(`{"_id":"note:%s:%d","id":"%d","userId":%q,"title":"n%d","updatedAt":%d}`, userID, id, id, userID, id, id)
				rows.AddRow(&driver.Row{ID: fmt.Sprintf("note:%s:%d", userID, id), Doc: strings.NewReader(doc)})
			}
			return &pagedRows{Rows: rows.Final(), bookmark: p.bookmark}, nil
		})
	}

	return &queries
}

func newPagedRepository(t *testing.T, pageSize int) (*noteRepository, *mockdb.Client) {
	t.Helper()

	client, mock, err := mockdb.New()
	if err != nil {
		t.Fatalf("failed to create mock client: %v", err)
	}

	repo := NewNoteRepository(client, "notes").(*noteRepository)
	repo.pageSize = pageSize
	return repo, mock
}

func TestNoteRepository_FindFollowsBookmark(t *testing.T) {
	repo, mock := newPagedRepository(t, 2)
	queries := expectPages(t, mock, "u1", []findPage{
		{ids: []int{1, 2}, bookmark: "b1"},
		{ids: []int{3, 4}, bookmark: "b2"},
		{ids: []int{5}, bookmark: "b3"},
	})

	since := int64(10)
	notes, err := repo.Find(context.Background(), "u1", &since)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(notes) != 5 {
		t.Fatalf("expected 5 notes across pages, got %d", len(notes))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	if len(*queries) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(*queries))
	}

	first := (*queries)[0]
	if first["limit"] != float64(2) {
		t.Errorf("expected limit 2, got %v", first["limit"])
	}
	if _, ok := first["bookmark"]; ok {
		t.Errorf("expected no bookmark on the first page, got %v", first["bookmark"])
	}

	selector, _ := first["selector"].(map[string]interface{})
	if selector["userId"] != "u1" || selector["isDeleted"] != false {
		t.Errorf("unexpected selector %v", selector)
	}
	if updated, _ := selector["updatedAt"].(map[string]interface{}); updated["$gte"] != float64(10) {
		t.Errorf("expected updatedAt >= 10, got %v", selector["updatedAt"])
	}

	if (*queries)[1]["bookmark"] != "b1" || (*queries)[2]["bookmark"] != "b2" {
		t.Errorf("expected bookmarks b1 then b2, got %v and %v", (*queries)[1]["bookmark"], (*queries)[2]["bookmark"])
	}
}

func TestNoteRepository_FindStopsWithoutBookmark(t *testing.T) {
	repo, mock := newPagedRepository(t, 2)
	expectPages(t, mock, "u1", []findPage{
		{ids: []int{1, 2}},
	})

	notes, err := repo.Find(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(notes) != 2 {
		t.Errorf("expected 2 notes, got %d", len(notes))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNoteRepository_MaxIDScansEveryPage(t *testing.T) {
	repo, mock := newPagedRepository(t, 3)
	queries := expectPages(t, mock, "u1", []findPage{
		{ids: []int{4, 1, 2}, bookmark: "b1"},
		{ids: []int{30, 7, 5}, bookmark: "b2"},
		{ids: []int{}, bookmark: "b3"},
	})

	highest, err := repo.MaxID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if highest != 30 {
		t.Errorf("expected 30, got %d", highest)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	selector, _ := (*queries)[0]["selector"].(map[string]interface{})
	if _, ok := selector["isDeleted"]; ok {
		t.Error("expected tombstones to be included when scanning ids")
	}
}
