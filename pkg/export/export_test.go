package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attendanceTable() Table {
	return Table{
		Title: "Attendance",
		Columns: []Column{
			{Key: "date", Label: "Date", Width: 1},
			{Key: "student", Label: "Student", Width: 2},
			{Key: "status", Label: "Status", Width: 1},
		},
		Rows: []map[string]string{
			{"date": "2024-03-01", "student": "Ava, K", "status": "Present"},
			{"date": "2024-03-01", "student": "Ben", "status": "Absent"},
		},
		Footer: []string{"Present 1 / Absent 1"},
	}
}

func TestCSVRender(t *testing.T) {
	out, err := CSV{}.Render(attendanceTable())
	require.NoError(t, err)
	assert.Equal(t, "Date,Student,Status\n2024-03-01,\"Ava, K\",Present\n2024-03-01,Ben,Absent\n", string(out))
}

func TestPDFRender(t *testing.T) {
	out, err := PDF{}.Render(attendanceTable())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresColumns(t *testing.T) {
	_, err := CSV{}.Render(Table{})
	assert.Error(t, err)
	_, err = PDF{}.Render(Table{})
	assert.Error(t, err)
}

func TestForFormat(t *testing.T) {
	r, err := ForFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", r.ContentType())

	_, err = ForFormat("xlsx")
	assert.Error(t, err)
}
