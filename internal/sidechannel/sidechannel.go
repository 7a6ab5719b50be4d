// Package sidechannel implements the line-oriented local TCP protocol used
// to hand the media directory layout to a companion process. The only
// recognized request is the literal CONFIG.
package sidechannel

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cubesync/cube-server/internal/config"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

type configReply struct {
	User          string `json:"User"`
	MainDirectory string `json:"MainDirectory"`
}

// Server answers CONFIG requests on a local TCP socket.
type Server struct {
	bind    string
	user    string
	baseDir string
}

// New creates the side-channel server. An empty baseDir falls back to
// $HOME/Cube.
func New(cfg *config.SideChannelConfig) *Server {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		baseDir = filepath.Join(home, "Cube")
	}
	return &Server{bind: cfg.Bind, user: cfg.User, baseDir: baseDir}
}

// ListenAndServe accepts connections until ctx is cancelled. Each
// connection carries a single request and a single reply.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	log.Infof("Config side channel listening on %s", s.bind)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Errorf("Side channel accept error: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}

	request := strings.TrimSpace(string(buf[:n]))
	log.Debugf("Side channel received: %q", request)

	var response []byte
	if request == "CONFIG" {
		reply, err := s.configReply()
		if err != nil {
			log.Errorf("Side channel config failed: %v", err)
			response = []byte(`{"error":"Internal error"}`)
		} else {
			response = reply
		}
	} else {
		response = []byte(`{"error":"Unknown command"}`)
	}

	if _, err := conn.Write(response); err != nil {
		log.Debugf("Side channel write failed: %v", err)
	}
}

// configReply ensures the companion's directory layout exists and reports
// the base directory it should work under.
func (s *Server) configReply() ([]byte, error) {
	for _, dir := range []string{
		filepath.Join(s.baseDir, s.user, "dcim", "thumbs"),
		filepath.Join(s.baseDir, s.user, "downloads", "thumbs"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	return json.Marshal(configReply{
		User:          s.user,
		MainDirectory: s.baseDir,
	})
}
