package datastore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *DataStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cameras.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLookupCamera(t *testing.T) {
	store := openTestStore(t)

	camera := &Camera{
		Token:         "tok-123",
		Name:          "North Gate",
		Location:      "Chitwan Sector 4",
		IsResidential: true,
		PublicSlug:    "north-gate",
		IsActive:      true,
		Recipients: []Recipient{
			{Phone: "+977980000001"},
			{Phone: "+977980000002"},
		},
	}
	require.NoError(t, store.SaveCamera(camera))

	loaded, err := store.CameraByToken("tok-123")
	require.NoError(t, err)
	assert.Equal(t, "North Gate", loaded.Name)
	assert.Equal(t, "Chitwan Sector 4", loaded.Location)
	assert.True(t, loaded.IsResidential)
	assert.ElementsMatch(t, []string{"+977980000001", "+977980000002"}, loaded.PhoneNumbers())
}

func TestUnknownTokenReturnsNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.CameraByToken("missing")
	assert.ErrorIs(t, err, ErrCameraNotFound)
}

func TestActiveCamerasFiltersInactive(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveCamera(&Camera{Token: "a", PublicSlug: "a", IsActive: true}))
	require.NoError(t, store.SaveCamera(&Camera{Token: "b", PublicSlug: "b", IsActive: false}))

	active, err := store.ActiveCameras()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a", active[0].Token)
}
