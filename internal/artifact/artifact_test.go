package artifact

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetdrop/sheetdrop/internal/contact"
	"github.com/sheetdrop/sheetdrop/internal/store"
	"github.com/sheetdrop/sheetdrop/internal/tabular"
)

func newTestService(passwords bool) *Service {
	return NewService(nil, store.NewMemory(), "https://sheets.example.com", 30*time.Minute, passwords)
}

func TestEmitAndGetRoundTrip(t *testing.T) {
	svc := newTestService(false)
	ctx := context.Background()

	contacts := []contact.Contact{
		{Name: "John Doe", Mobile: "+2348123456789", Passes: 1},
		{Name: "Jane Smith", Mobile: "+2347012345678", Passes: 2},
	}
	stored, err := svc.Emit(ctx, "2348000000000", contacts, tabular.FormatCSV)
	require.NoError(t, err)

	_, err = uuid.Parse(stored.ID)
	require.NoError(t, err, "artifact id must be a UUID")
	assert.Equal(t, 2, stored.Count)
	assert.Equal(t, "https://sheets.example.com/download/"+stored.ID, stored.URL)
	assert.Empty(t, stored.Password)

	art, err := svc.Get(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "2348000000000", art.Owner)
	assert.Equal(t, 2, art.ContactCount)
	assert.Equal(t, tabular.MIMECSV, art.ContentType)
	assert.True(t, strings.HasPrefix(art.Filename, "contacts-"))
	assert.True(t, strings.HasSuffix(art.Filename, ".csv"))
	assert.Contains(t, string(art.Content), "John Doe,+2348123456789")
}

func TestEmitCSVCarriesBOM(t *testing.T) {
	svc := newTestService(false)

	stored, err := svc.Emit(context.Background(), "u", []contact.Contact{{Name: "X", Passes: 1}}, tabular.FormatCSV)
	require.NoError(t, err)

	art, err := svc.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, art.Content[:3])
}

func TestEmitWithPassword(t *testing.T) {
	svc := newTestService(true)

	stored, err := svc.Emit(context.Background(), "u", []contact.Contact{{Name: "X", Passes: 1}}, tabular.FormatCSV)
	require.NoError(t, err)
	require.Len(t, stored.Password, 6)
	assert.Contains(t, stored.URL, "?p="+stored.Password)

	art, err := svc.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Password, art.Password)
}

func TestGetUnknownAndMalformedIDs(t *testing.T) {
	svc := newTestService(false)

	art, err := svc.Get(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, art)

	// Non-UUID identifiers never hit the store.
	art, err = svc.Get(context.Background(), "../../etc/passwd")
	require.NoError(t, err)
	assert.Nil(t, art)
}

func TestEmitXLSXMetadata(t *testing.T) {
	svc := newTestService(false)

	stored, err := svc.Emit(context.Background(), "u", []contact.Contact{{Name: "X", Passes: 1}}, tabular.FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, tabular.FormatXLSX, stored.Format)

	art, err := svc.Get(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, tabular.MIMEXLSX, art.ContentType)
	assert.True(t, strings.HasSuffix(art.Filename, ".xlsx"))
}

func TestFileURL(t *testing.T) {
	svc := newTestService(false)
	assert.Equal(t, "https://sheets.example.com/files/abc", svc.FileURL("abc", ""))
	assert.Equal(t, "https://sheets.example.com/files/abc?p=123456", svc.FileURL("abc", "123456"))
}
