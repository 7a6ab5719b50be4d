package sidechannel

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubesync/cube-server/internal/config"
)

func roundTrip(t *testing.T, s *Server, request string) []byte {
	t.Helper()

	server, client := net.Pipe()
	go s.handle(server)

	_, err := client.Write([]byte(request))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)
	client.Close()
	return buf[:n]
}

func TestConfigRequest(t *testing.T) {
	base := t.TempDir()
	s := New(&config.SideChannelConfig{Bind: "127.0.0.1:0", User: "alice", BaseDir: base})

	resp := roundTrip(t, s, "CONFIG\n")

	var reply struct {
		User          string `json:"User"`
		MainDirectory string `json:"MainDirectory"`
	}
	require.NoError(t, json.Unmarshal(resp, &reply))
	assert.Equal(t, "alice", reply.User)
	assert.Equal(t, base, reply.MainDirectory)

	// One request is enough to lay out the companion's directories.
	assert.DirExists(t, filepath.Join(base, "alice", "dcim", "thumbs"))
	assert.DirExists(t, filepath.Join(base, "alice", "downloads", "thumbs"))
}

func TestUnknownCommand(t *testing.T) {
	s := New(&config.SideChannelConfig{Bind: "127.0.0.1:0", User: "alice", BaseDir: t.TempDir()})

	resp := roundTrip(t, s, "REBOOT\n")
	assert.JSONEq(t, `{"error":"Unknown command"}`, string(resp))
}

func TestDefaultBaseDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	s := New(&config.SideChannelConfig{Bind: "127.0.0.1:0", User: "bob"})
	assert.Contains(t, s.baseDir, "Cube")
}
