package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	w, err := Load("")
	require.NoError(t, err)

	c := w.Current()
	require.Equal(t, ":8081", c.Server.Address)
	require.Equal(t, "sqlite", c.Backend.Kind)
	require.Equal(t, "lattice.db", c.Backend.Path)
}

func TestLoadOverlaysYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9090"
backend:
  kind: mysql
  mysql:
    host: db.internal
    port: 3307
`), 0o644))

	w, err := Load(path)
	require.NoError(t, err)

	c := w.Current()
	require.Equal(t, ":9090", c.Server.Address)
	require.Equal(t, "mysql", c.Backend.Kind)
	require.Equal(t, "db.internal", c.Backend.MySQL.Host)
	require.Equal(t, 3307, c.Backend.MySQL.Port)
	// Values the YAML file never mentions still fall back to defaults.
	require.Equal(t, "lattice-documents", c.Blobstore.Root)
}
