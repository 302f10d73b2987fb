package ravana

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseDir    = "/opt/kinant"
	DefaultSocketName = "RavanaSocket"

	// BaseDirEnv overrides Config.BaseDir when set.
	BaseDirEnv = "KINANT_PATH"
)

// Compression names accepted in Config.Compression
const (
	CompressionNone = "none"
	CompressionS2   = "s2"
)

// Config describes where channel endpoints live and how calls behave.
type Config struct {
	// BaseDir holds one directory per channel, named by the channel id.
	BaseDir string `yaml:"basedir"`

	// SocketName is the socket file inside each channel directory.
	SocketName string `yaml:"socket"`

	// Timeout bounds a whole call, connect to close. Zero means no limit
	// beyond the context passed to the call.
	Timeout time.Duration `yaml:"timeout"`

	// Compression wraps the connection in a compressed stream. Only usable
	// against a server doing the same; "none" speaks the plain protocol.
	Compression string `yaml:"compression"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseDir:     DefaultBaseDir,
		SocketName:  DefaultSocketName,
		Compression: CompressionNone,
	}
}

// ReadConfig parses YAML on top of the defaults. Unknown keys are errors.
func ReadConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return c, c.Validate()
}

// LoadConfig reads the file at path, falling back to the defaults when it
// does not exist. The BaseDirEnv environment variable wins over both.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			if c, err = ReadConfig(f); err != nil {
				return nil, err
			}
		case errors.Is(err, fs.ErrNotExist):
			Logger.Debug().Msgf("No config at %s, using defaults", path)
		default:
			return nil, err
		}
	}
	if dir := os.Getenv(BaseDirEnv); dir != "" {
		c.BaseDir = dir
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return invalidArgf("empty base directory")
	}
	if c.SocketName == "" || filepath.Base(c.SocketName) != c.SocketName {
		return invalidArgf("socket name %q", c.SocketName)
	}
	if c.Timeout < 0 {
		return invalidArgf("negative timeout %v", c.Timeout)
	}
	switch c.Compression {
	case "", CompressionNone, CompressionS2:
	default:
		return invalidArgf("compression %q", c.Compression)
	}
	return nil
}

// Endpoint returns the socket path serving cid. It is a pure function of the
// configuration and the id.
func (c *Config) Endpoint(cid Cid) string {
	return filepath.Join(c.BaseDir, cid.String(), c.SocketName)
}
