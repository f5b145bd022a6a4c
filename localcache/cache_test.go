package localcache

import (
	"os"
	"path/filepath"
	"testing"

	"voicediary/diary"
)

func TestCachePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "session.yaml")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.PairingCode() != "" || c.Role() != "" || c.Profile() != nil {
		t.Fatal("new cache should be empty")
	}

	if err := c.SetPairingCode("123-456"); err != nil {
		t.Fatal(err)
	}
	c.SetRole(RoleElderly)
	c.SetDeviceID("dev-1")
	c.SetProfile(&diary.Profile{Name: "Malee", Phone: "0891112222"})

	c2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if c2.PairingCode() != "123-456" || c2.Role() != RoleElderly || c2.DeviceID() != "dev-1" {
		t.Errorf("reloaded = %q %q %q", c2.PairingCode(), c2.Role(), c2.DeviceID())
	}
	if p := c2.Profile(); p == nil || p.Name != "Malee" {
		t.Errorf("profile = %+v", p)
	}

	if err := c2.Clear(); err != nil {
		t.Fatal(err)
	}
	c3, _ := Open(path)
	if c3.PairingCode() != "" || c3.Profile() != nil || c3.DeviceID() != "dev-1" {
		t.Errorf("after Clear: %q %+v %q", c3.PairingCode(), c3.Profile(), c3.DeviceID())
	}
}

func TestCacheProfileIsCopied(t *testing.T) {
	c, _ := Open("")
	p := &diary.Profile{Name: "A"}
	c.SetProfile(p)
	p.Name = "B"
	got := c.Profile()
	got.Name = "C"
	if c.Profile().Name != "A" {
		t.Errorf("profile = %q, want A", c.Profile().Name)
	}
}

func TestCacheCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	os.WriteFile(path, []byte("role: [unterminated"), 0600)
	c, err := Open(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if c == nil || c.Role() != "" {
		t.Fatal("corrupt cache should yield an empty usable cache")
	}
	if err := c.SetRole(RoleRelative); err != nil {
		t.Fatal(err)
	}
	if c2, err := Open(path); err != nil || c2.Role() != RoleRelative {
		t.Errorf("rewrite failed: %v", err)
	}
}
