// Package tunnelfs owns the on-disk layout under the cloudflared home:
// one directory per account holding its origin certificate, and per tunnel
// an ingress config and the credentials file written by cloudflared.
package tunnelfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	certFile        = "cert.pem"
	notFoundService = "http_status:404"
)

type Layout struct {
	Home string
}

func New(home string) Layout { return Layout{Home: home} }

func (l Layout) AccountDir(account string) string {
	return filepath.Join(l.Home, account)
}

func (l Layout) CertPath(account string) string {
	return filepath.Join(l.AccountDir(account), certFile)
}

// LoginCertPath is where `cloudflared tunnel login` drops a fresh cert.
func (l Layout) LoginCertPath() string {
	return filepath.Join(l.Home, certFile)
}

func (l Layout) ConfigPath(account, tunnelID string) string {
	return filepath.Join(l.AccountDir(account), "config-"+tunnelID+".yml")
}

func (l Layout) CredentialsPath(account, tunnelID string) string {
	return filepath.Join(l.AccountDir(account), tunnelID+".json")
}

// CertStatus reports whether the account has a certificate and when it
// was written.
func (l Layout) CertStatus(account string) (bool, time.Time) {
	fi, err := os.Stat(l.CertPath(account))
	if err != nil {
		return false, time.Time{}
	}
	return true, fi.ModTime()
}

func (l Layout) HasCert(account string) bool {
	ok, _ := l.CertStatus(account)
	return ok
}

// AdoptLoginCert moves the certificate produced by a login into the
// account's directory, replacing any previous one.
func (l Layout) AdoptLoginCert(account string) (string, error) {
	src := l.LoginCertPath()
	dst := l.CertPath(account)
	if err := os.MkdirAll(l.AccountDir(account), 0700); err != nil {
		return "", fmt.Errorf("create account dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}
	// Rename fails across filesystems; fall back to copy and remove.
	if err := copyFile(src, dst, 0600); err != nil {
		return "", fmt.Errorf("move cert: %w", err)
	}
	os.Remove(src)
	return dst, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type OriginRequest struct {
	NoTLSVerify bool `yaml:"noTLSVerify,omitempty"`
}

type IngressRule struct {
	Hostname      string         `yaml:"hostname,omitempty"`
	Service       string         `yaml:"service"`
	OriginRequest *OriginRequest `yaml:"originRequest,omitempty"`
}

// Config is the cloudflared config file for one tunnel.
type Config struct {
	Tunnel          string        `yaml:"tunnel"`
	CredentialsFile string        `yaml:"credentials-file"`
	Ingress         []IngressRule `yaml:"ingress"`
}

// Route returns the first hostname rule of the ingress list.
func (c *Config) Route() (IngressRule, bool) {
	for _, r := range c.Ingress {
		if r.Hostname != "" {
			return r, true
		}
	}
	return IngressRule{}, false
}

// BuildConfig renders the single-hostname ingress used by every tunnel,
// ending with the mandatory catch-all rule.
func (l Layout) BuildConfig(account, tunnelID, hostname, service string, noTLSVerify bool) Config {
	rule := IngressRule{Hostname: hostname, Service: service}
	if noTLSVerify {
		rule.OriginRequest = &OriginRequest{NoTLSVerify: true}
	}
	return Config{
		Tunnel:          tunnelID,
		CredentialsFile: l.CredentialsPath(account, tunnelID),
		Ingress:         []IngressRule{rule, {Service: notFoundService}},
	}
}

// WriteConfig writes the ingress config and returns its path.
func (l Layout) WriteConfig(account, tunnelID, hostname, service string, noTLSVerify bool) (string, error) {
	cfg := l.BuildConfig(account, tunnelID, hostname, service, noTLSVerify)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("marshal tunnel config: %w", err)
	}
	if err := os.MkdirAll(l.AccountDir(account), 0700); err != nil {
		return "", fmt.Errorf("create account dir: %w", err)
	}
	path := l.ConfigPath(account, tunnelID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write tunnel config: %w", err)
	}
	return path, nil
}

func (l Layout) ReadConfig(account, tunnelID string) (*Config, error) {
	data, err := os.ReadFile(l.ConfigPath(account, tunnelID))
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tunnel config: %w", err)
	}
	return &cfg, nil
}

// RemoveTunnelFiles deletes the config and credentials of a tunnel.
// Files that do not exist are skipped.
func (l Layout) RemoveTunnelFiles(account, tunnelID string) error {
	var errs []error
	for _, p := range []string{l.ConfigPath(account, tunnelID), l.CredentialsPath(account, tunnelID)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
