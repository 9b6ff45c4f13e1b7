package config

import (
	"net/url"
	"testing"
)

func TestServeConfig_Addr(t *testing.T) {
	cfg := &ServeConfig{Host: "localhost", Port: 3000}
	if got := cfg.Addr(); got != "localhost:3000" {
		t.Errorf("Addr() = %q, want localhost:3000", got)
	}
	if got := cfg.URL(); got != "http://localhost:3000" {
		t.Errorf("URL() = %q, want http://localhost:3000", got)
	}

	cfg.TLS = &TLSConfig{CertPath: "c", KeyPath: "k"}
	if got := cfg.URL(); got != "https://localhost:3000" {
		t.Errorf("URL() with TLS = %q, want https scheme", got)
	}
}

func TestServeConfig_RootDir(t *testing.T) {
	cfg := &ServeConfig{ContentBase: []ContentRoot{
		{Dir: "/srv/assets", Mount: "/assets"},
		{Dir: "/srv/public", Mount: "/"},
		{Dir: "/srv/other", Mount: "/"},
	}}
	if got := cfg.RootDir(); got != "/srv/public" {
		t.Errorf("RootDir() = %q, want first root-mounted dir", got)
	}

	none := &ServeConfig{ContentBase: []ContentRoot{{Dir: "/srv/assets", Mount: "/assets"}}}
	if got := none.RootDir(); got != "" {
		t.Errorf("RootDir() = %q, want empty", got)
	}
}

func TestFingerprint_ProxyOrderIndependent(t *testing.T) {
	target, _ := url.Parse("http://localhost:9000")
	a := &ServeConfig{Host: "localhost", Port: 3000, Proxy: []ProxyRoute{{Prefix: "/api", Target: target}}}
	b := &ServeConfig{Host: "localhost", Port: 3000, Proxy: []ProxyRoute{{Prefix: "/api", Target: target}}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equal canonical configs should share a fingerprint")
	}

	b.Proxy[0].StripPrefix = true
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("stripPrefix change should change the fingerprint")
	}
}
