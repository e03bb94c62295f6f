package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	token, grant, err := s.Sign("job-1", "attendance/T001/job-1.csv")
	require.NoError(t, err)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, grant.JobID, got.JobID)
	assert.Equal(t, grant.Path, got.Path)
	assert.True(t, grant.ExpiresAt.Equal(got.ExpiresAt))
}

func TestSignerRejectsTamperingAndExpiry(t *testing.T) {
	s := NewSigner("secret", time.Minute)
	token, _, err := s.Sign("job-1", "a.csv")
	require.NoError(t, err)

	_, err = NewSigner("other", time.Minute).Verify(token)
	assert.ErrorIs(t, err, ErrTokenSignature)

	_, err = s.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrTokenMalformed)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	g, err := s.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, "job-1", g.JobID)
}

func TestLocalStorageSaveOpenSweep(t *testing.T) {
	dir := t.TempDir()
	st, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, st.Save("reports/a.csv", []byte("x,y\n")))
	f, err := st.Open("reports/a.csv")
	require.NoError(t, err)
	body, _ := io.ReadAll(f)
	_ = f.Close()
	assert.Equal(t, "x,y\n", string(body))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "reports", "a.csv"), old, old))
	removed, err := st.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/a.csv"}, removed)

	assert.NoError(t, st.Delete("reports/a.csv"))
}

func TestLocalStorageRejectsEscape(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.ErrorIs(t, st.Save("../evil", nil), ErrOutsideRoot)
	_, err = st.Open("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
