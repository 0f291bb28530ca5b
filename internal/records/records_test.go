package records

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentCorner/internal/database"
	"talentCorner/internal/database/dbtest"
	"talentCorner/internal/errcode"
	"talentCorner/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string]string
}

func newMemStore() *memStore { return &memStore{objects: map[string]string{}} }

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = string(data)
	return nil
}

func (m *memStore) URL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://files.test/" + key + "?ttl=" + ttl.String(), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

type rejectScanner struct{}

func (rejectScanner) Scan(context.Context, io.Reader) error { return storage.ErrInfected }

func newTestStore(t *testing.T, objects storage.ObjectStore, scanner storage.Scanner) *Store {
	t.Helper()
	s := NewStore(dbtest.Open(t), objects, scanner, time.Minute, nil)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		in                  string
		first, middle, last string
	}{
		{"Ada", "Ada", "", ""},
		{"Ada Lovelace", "Ada", "", "Lovelace"},
		{"Ada  King  Byron Lovelace", "Ada", "King Byron", "Lovelace"},
		{"   ", "", "", ""},
	}
	for _, tc := range cases {
		first, middle, last := SplitName(tc.in)
		assert.Equal(t, tc.first, first, tc.in)
		assert.Equal(t, tc.middle, middle, tc.in)
		assert.Equal(t, tc.last, last, tc.in)
	}
}

func TestSubmitStoresResumeAndForm(t *testing.T) {
	objects := newMemStore()
	s := newTestStore(t, objects, nil)
	ctx := context.Background()

	row, err := s.Submit(ctx, IntakeForm{
		FullName:  "Ada King Lovelace",
		Email:     " ada@example.test ",
		Domain:    "Engineering",
		SubDomain: "Go",
		Skills:    "go, sql ,, redis",
	}, &Upload{Filename: "CV.PDF", Size: 8, Body: strings.NewReader("%PDF-1.4")})
	require.NoError(t, err)

	assert.Equal(t, "Ada", row.FirstName)
	assert.Equal(t, "King", row.MiddleName)
	assert.Equal(t, "Lovelace", row.LastName)
	assert.Equal(t, "ada@example.test", row.Email)
	assert.Regexp(t, `^resumes/resume-1700000000000-[0-9a-f]{8}\.pdf$`, row.ResumeURL)
	assert.JSONEq(t, `["go","sql","redis"]`, string(row.Skills))
	require.NotNil(t, row.EmailSent)
	assert.Equal(t, 0, *row.EmailSent)
	assert.Equal(t, "%PDF-1.4", objects.objects[row.ResumeURL])

	u, err := s.ResumeURL(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/"+row.ResumeURL+"?ttl=1m0s", u)
}

func TestSubmitKeepsTypedResumeURLWithoutFile(t *testing.T) {
	s := newTestStore(t, newMemStore(), nil)
	ctx := context.Background()

	row, err := s.Submit(ctx, IntakeForm{FullName: "Ada", Email: "ada@example.test", ResumeURL: "https://cv.example/ada"}, nil)
	require.NoError(t, err)

	u, err := s.ResumeURL(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cv.example/ada", u)
}

func TestSubmitRejectsMissingFieldsAndInfectedFiles(t *testing.T) {
	objects := newMemStore()
	s := newTestStore(t, objects, rejectScanner{})
	ctx := context.Background()

	_, err := s.Submit(ctx, IntakeForm{FullName: " ", Email: "ada@example.test"}, nil)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = s.Submit(ctx, IntakeForm{FullName: "Ada", Email: "ada@example.test"},
		&Upload{Filename: "x.pdf", Body: strings.NewReader("EICAR")})
	assert.ErrorIs(t, err, storage.ErrInfected)
	assert.Equal(t, errcode.Validation, errcode.CodeOf(err))
	assert.Empty(t, objects.objects)

	var count int64
	require.NoError(t, s.db.Model(&database.CandidateDetail{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteDetailsRemovesResumes(t *testing.T) {
	objects := newMemStore()
	s := newTestStore(t, objects, nil)
	ctx := context.Background()

	keep, err := s.Submit(ctx, IntakeForm{FullName: "Keep Me", Email: "keep@example.test"}, nil)
	require.NoError(t, err)
	gone, err := s.Submit(ctx, IntakeForm{FullName: "Gone", Email: "gone@example.test"},
		&Upload{Filename: "a.pdf", Body: strings.NewReader("a")})
	require.NoError(t, err)
	require.Len(t, objects.objects, 1)

	n, err := s.DeleteDetails(ctx, []uint{gone.ID, 999})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, objects.objects)

	listing, err := s.ListDetails(ctx)
	require.NoError(t, err)
	require.Len(t, listing.Rows, 1)
	assert.Equal(t, keep.ID, listing.Rows[0].ID)
	assert.Equal(t, "Keep Me", listing.Rows[0].Name)
	assert.Equal(t, DetailHeaders, listing.Headers)

	_, err = s.DeleteDetails(ctx, nil)
	assert.ErrorIs(t, err, ErrNoIDs)

	_, err = s.ResumeURL(ctx, keep.ID)
	assert.ErrorIs(t, err, ErrNoResume)
	_, err = s.ResumeURL(ctx, gone.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAllDetailsClearsResumePrefix(t *testing.T) {
	objects := newMemStore()
	s := newTestStore(t, objects, nil)
	ctx := context.Background()
	objects.objects["other/logo.png"] = "x"

	_, err := s.Submit(ctx, IntakeForm{FullName: "A", Email: "a@example.test"},
		&Upload{Filename: "a.pdf", Body: strings.NewReader("a")})
	require.NoError(t, err)

	n, err := s.DeleteAllDetails(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, map[string]string{"other/logo.png": "x"}, objects.objects)
}

func TestImportedRecordEdits(t *testing.T) {
	s := newTestStore(t, nil, nil)
	ctx := context.Background()
	rows := []database.ImportedRecord{
		{FullName: "Ada", Email: "ada@example.test", PhoneNo: "1"},
		{FullName: "Bob", Email: "bob@example.test", PhoneNo: "2"},
	}
	require.NoError(t, s.db.Create(&rows).Error)

	err := s.ModifyImported(ctx, ImportedEdit{ID: rows[0].ID, FullName: "Ada L", Email: "ada@example.test", Phone: "9", EmailStatus: 7})
	require.NoError(t, err)

	listing, err := s.ListImported(ctx)
	require.NoError(t, err)
	require.Len(t, listing.Rows, 2)
	assert.Equal(t, "Ada L", listing.Rows[0].FullName)
	require.NotNil(t, listing.Rows[0].EmailSent)
	assert.Equal(t, 1, *listing.Rows[0].EmailSent)

	assert.ErrorIs(t, s.ModifyImported(ctx, ImportedEdit{}), ErrMissingID)
	assert.ErrorIs(t, s.ModifyImported(ctx, ImportedEdit{ID: 999}), ErrNotFound)

	n, err := s.DeleteImported(ctx, []uint{rows[1].ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeleteAllImported(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
