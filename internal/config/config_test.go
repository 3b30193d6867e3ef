// Package config provides configuration management for reliefline.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir string
}

func (s *ConfigSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "config-test-*")
	s.Require().NoError(err)
}

func (s *ConfigSuite) TearDownTest() {
	os.RemoveAll(s.tempDir)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultListenAddr, cfg.ListenAddr)
	s.Equal(DefaultDBPath, cfg.DBPath)
	s.Equal(4, cfg.MaxConns)
	s.Equal(10*time.Minute, cfg.SessionTTL())
	s.Equal(30*time.Minute, cfg.DuplicateWindow())
	s.Equal(3, cfg.SessionStartsPerHour)
	s.Equal(50.0, cfg.MaxRadiusKm)
	s.Equal(5*time.Minute, cfg.AutoMatchGrace())
	s.Equal(5, cfg.MaxCandidates)
	s.Empty(cfg.RedisAddr)
	s.Empty(cfg.GatewaySecret)
}

// TestLoadMissingFile returns defaults when no config file exists.
func (s *ConfigSuite) TestLoadMissingFile() {
	cfg, err := Load(filepath.Join(s.tempDir, "nope.yaml"))
	s.Require().NoError(err)
	s.Equal(Default(), cfg)
}

// TestLoadPartialFile merges file values over defaults.
func (s *ConfigSuite) TestLoadPartialFile() {
	path := filepath.Join(s.tempDir, "reliefline.yaml")
	content := `
listen_addr: ":9000"
session_ttl_minutes: 5
redis_addr: "localhost:6379"
phone_salt: "test-salt"
`
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	s.Require().NoError(err)

	s.Equal(":9000", cfg.ListenAddr)
	s.Equal(5*time.Minute, cfg.SessionTTL())
	s.Equal("localhost:6379", cfg.RedisAddr)
	s.Equal("test-salt", cfg.PhoneSalt)
	// Untouched fields keep defaults.
	s.Equal(DefaultDBPath, cfg.DBPath)
	s.Equal(30*time.Minute, cfg.DuplicateWindow())
}

// TestLoadMalformedFile surfaces parse errors.
func (s *ConfigSuite) TestLoadMalformedFile() {
	path := filepath.Join(s.tempDir, "bad.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("listen_addr: [:::"), 0o644))

	_, err := Load(path)
	s.Error(err)
}

// TestApplyFloors keeps explicit zeros from disabling core timers.
func (s *ConfigSuite) TestApplyFloors() {
	path := filepath.Join(s.tempDir, "zeros.yaml")
	content := `
session_ttl_minutes: 0
max_candidates: -1
`
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal(DefaultSessionTTLMin, cfg.SessionTTLMinutes)
	s.Equal(DefaultMaxCandidates, cfg.MaxCandidates)
}
