package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/database/mock"
	"github.com/kozaktomas/smart-library/internal/faceauth"
)

func testDescriptor(seed float64) faceauth.Descriptor {
	d := make(faceauth.Descriptor, faceauth.DescriptorSize)
	for i := range d {
		d[i] = seed / float64(i+1)
	}
	return d
}

func enrollmentDoc(t *testing.T, d faceauth.Descriptor) []byte {
	t.Helper()
	doc, err := faceauth.EncodeStoredRecord(d, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("EncodeStoredRecord() error = %v", err)
	}
	return doc
}

func TestAuditRecord(t *testing.T) {
	valid := enrollmentDoc(t, testDescriptor(0.1))

	tests := []struct {
		name          string
		data          []byte
		mirrored      bool
		wantStatus    string
		wantUnindexed bool
	}{
		{"not enrolled", nil, false, auditNotEnrolled, false},
		{"json null", []byte("null"), false, auditNotEnrolled, false},
		{"mirrored enrollment", valid, true, auditOK, false},
		{"missing vector column", valid, false, auditOK, true},
		{"not json", []byte("{broken"), false, auditCorrupt, false},
		{"wrong length", []byte("[0.1, 0.2, 0.3]"), false, auditCorrupt, false},
		{"strings", []byte(`{"descriptor": ["a", "b"]}`), false, auditCorrupt, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := database.FacialDataRecord{UserID: 7, Email: "ada@example.com", FacialData: tt.data}
			entry, _ := auditRecord(rec, map[int64]bool{7: tt.mirrored})
			if entry.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", entry.Status, tt.wantStatus)
			}
			if entry.Unindexed != tt.wantUnindexed {
				t.Errorf("Unindexed = %v, want %v", entry.Unindexed, tt.wantUnindexed)
			}
			if entry.UserID != 7 || entry.Email != "ada@example.com" {
				t.Errorf("entry identity = %d/%s", entry.UserID, entry.Email)
			}
		})
	}
}

func seedAuditUsers(t *testing.T) *mock.MockUserWriter {
	t.Helper()
	users := mock.NewMockUserWriter()
	d := testDescriptor(0.2)

	ok := users.AddUser(database.User{Name: "Ada", Email: "ada@example.com", FacialData: enrollmentDoc(t, d)})
	users.SetDescriptor(ok, d.Float32())
	users.AddUser(database.User{Name: "Bob", Email: "bob@example.com"})
	users.AddUser(database.User{Name: "Cyril", Email: "cyril@example.com", FacialData: []byte("garbage")})
	users.AddUser(database.User{Name: "Dana", Email: "dana@example.com", FacialData: enrollmentDoc(t, testDescriptor(0.3))})
	return users
}

func TestAuditDescriptors(t *testing.T) {
	users := seedAuditUsers(t)

	calls := 0
	result, err := auditDescriptors(t.Context(), users, false, func() { calls++ })
	if err != nil {
		t.Fatalf("auditDescriptors() error = %v", err)
	}

	if calls != 4 {
		t.Errorf("progress called %d times, want 4", calls)
	}
	if result.Scanned != 4 || result.OK != 2 || result.NotEnrolled != 1 || result.Corrupt != 1 {
		t.Errorf("counts = %+v", result)
	}
	if result.Unindexed != 1 || result.Fixed != 0 {
		t.Errorf("Unindexed = %d, Fixed = %d, want 1, 0", result.Unindexed, result.Fixed)
	}
	if len(result.Problems) != 3 {
		t.Fatalf("Problems = %d, want 3", len(result.Problems))
	}

	enrolled, _ := users.ListEnrolledDescriptors(t.Context())
	if len(enrolled) != 1 {
		t.Errorf("audit without --fix changed vector columns: %d mirrored", len(enrolled))
	}
}

func TestAuditDescriptorsFix(t *testing.T) {
	users := seedAuditUsers(t)

	result, err := auditDescriptors(t.Context(), users, true, nil)
	if err != nil {
		t.Fatalf("auditDescriptors() error = %v", err)
	}
	if result.Fixed != 1 {
		t.Errorf("Fixed = %d, want 1", result.Fixed)
	}

	enrolled, _ := users.ListEnrolledDescriptors(t.Context())
	if len(enrolled) != 2 {
		t.Errorf("mirrored after fix = %d, want 2", len(enrolled))
	}

	again, err := auditDescriptors(t.Context(), users, false, nil)
	if err != nil {
		t.Fatalf("second audit error = %v", err)
	}
	if again.Unindexed != 0 {
		t.Errorf("Unindexed after fix = %d, want 0", again.Unindexed)
	}
}

func TestAuditDescriptorsListError(t *testing.T) {
	users := mock.NewMockUserWriter()
	users.ListDescriptorError = errors.New("connection reset")

	if _, err := auditDescriptors(t.Context(), users, false, nil); err == nil {
		t.Fatal("auditDescriptors() error = nil, want error")
	}
}

func TestReadDescriptor(t *testing.T) {
	d := testDescriptor(0.4)
	dir := t.TempDir()

	docPath := filepath.Join(dir, "doc.json")
	if err := os.WriteFile(docPath, enrollmentDoc(t, d), 0o600); err != nil {
		t.Fatal(err)
	}
	shortPath := filepath.Join(dir, "short.json")
	if err := os.WriteFile(shortPath, []byte("[1, 2, 3]"), 0o600); err != nil {
		t.Fatal(err)
	}

	var bare strings.Builder
	bare.WriteString("[")
	for i := range faceauth.DescriptorSize {
		if i > 0 {
			bare.WriteString(",")
		}
		bare.WriteString("0.01")
	}
	bare.WriteString("]")

	tests := []struct {
		name    string
		path    string
		stdin   string
		wantErr bool
	}{
		{"enrollment document", docPath, "", false},
		{"bare array from stdin", "-", bare.String(), false},
		{"wrong length", shortPath, "", true},
		{"missing file", filepath.Join(dir, "nope.json"), "", true},
		{"no path", "", "", true},
		{"empty stdin", "-", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readDescriptor(tt.path, strings.NewReader(tt.stdin))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readDescriptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != faceauth.DescriptorSize {
				t.Errorf("len = %d, want %d", len(got), faceauth.DescriptorSize)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{59*time.Second + 900*time.Millisecond, "59s"},
		{12 * time.Minute, "12m00s"},
		{3*time.Minute + 5*time.Second, "3m05s"},
		{2*time.Hour + 7*time.Minute, "2h07m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseUserID(t *testing.T) {
	if id, err := parseUserID("12"); err != nil || id != 12 {
		t.Errorf("parseUserID(12) = %d, %v", id, err)
	}
	for _, arg := range []string{"0", "-3", "abc"} {
		if _, err := parseUserID(arg); err == nil {
			t.Errorf("parseUserID(%q) error = nil", arg)
		}
	}
}
