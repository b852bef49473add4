package versionfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		field   string
		want    string
		wantErr error
	}{
		{name: "pubspec", data: "name: app\nversion: 1.2.3+45\n", field: "version", want: "1.2.3+45"},
		{name: "default field", data: "version: 2.0.0\n", want: "2.0.0"},
		{name: "quoted", data: "version: \"3.1.0\"\n", field: "version", want: "3.1.0"},
		{name: "custom field", data: "build: 17\n", field: "build", want: "17"},
		{name: "missing", data: "name: app\n", field: "version", wantErr: ErrNotFound},
		{name: "empty value", data: "version:\n", field: "version", wantErr: ErrNotFound},
		{name: "not yaml", data: "\t- [broken\nversion: 0.9.1\n", field: "version", want: "0.9.1"},
		{name: "not yaml missing", data: "\t- [broken\n", field: "version", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Lookup([]byte(tt.data), tt.field)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pubspec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: app\nversion: 1.0.0+1\n"), 0o644))

	got, err := Read(path, "version")
	require.NoError(t, err)
	assert.Equal(t, "version: 1.0.0+1", Line("version", got))

	_, err = Read(filepath.Join(t.TempDir(), "missing.yaml"), "version")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
