package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegisterAndListInstances(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	inst := Instance{PID: os.Getpid(), Host: "localhost", Port: 7434, StartedAt: time.Now()}
	if err := RegisterInstance(inst); err != nil {
		t.Fatalf("RegisterInstance failed: %v", err)
	}

	instances, err := ListInstances()
	if err != nil {
		t.Fatalf("ListInstances failed: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("Expected 1 instance, got %d", len(instances))
	}
	if instances[0].Port != 7434 {
		t.Errorf("Expected port 7434, got %d", instances[0].Port)
	}
	if got := instances[0].BaseURL(); got != "http://localhost:7434" {
		t.Errorf("BaseURL = %q", got)
	}
}

func TestRegisterReplacesSamePID(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	RegisterInstance(Instance{PID: os.Getpid(), Host: "localhost", Port: 7434, StartedAt: time.Now()})
	RegisterInstance(Instance{PID: os.Getpid(), Host: "localhost", Port: 7500, StartedAt: time.Now()})

	instances, _ := ListInstances()
	if len(instances) != 1 || instances[0].Port != 7500 {
		t.Errorf("instances = %+v, want only port 7500", instances)
	}
}

func TestUnregisterInstance(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := RegisterInstance(Instance{PID: os.Getpid(), Port: 7434, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := UnregisterInstance(os.Getpid()); err != nil {
		t.Fatalf("UnregisterInstance failed: %v", err)
	}
	instances, err := ListInstances()
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 0 {
		t.Errorf("Expected 0 instances after unregister, got %d", len(instances))
	}
}

func TestStalePIDCleanup(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	// Almost certainly not a real pid.
	if err := RegisterInstance(Instance{PID: 999999999, StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	instances, err := ListInstances()
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 0 {
		t.Errorf("Expected stale entry to be dropped, got %d", len(instances))
	}
	if _, ok := FindInstance(); ok {
		t.Error("FindInstance found a stale entry")
	}
	if _, err := os.Stat(filepath.Join(home, ".thinkt-live", "instances.json")); err != nil {
		t.Errorf("instances.json missing: %v", err)
	}
}

func TestFindInstanceNewest(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := InstancesPath()
	if err != nil {
		t.Fatal(err)
	}
	os.MkdirAll(filepath.Dir(path), 0o755)
	now := time.Now()
	// Two entries for this process written directly, since RegisterInstance
	// keeps one per pid.
	err = writeInstances(path, []Instance{
		{PID: os.Getpid(), Host: "localhost", Port: 7001, StartedAt: now.Add(-time.Hour)},
		{PID: os.Getpid(), Host: "localhost", Port: 7002, StartedAt: now},
	})
	if err != nil {
		t.Fatal(err)
	}

	inst, ok := FindInstance()
	if !ok {
		t.Fatal("FindInstance found nothing")
	}
	if inst.Port != 7002 {
		t.Errorf("Port = %d, want the newest (7002)", inst.Port)
	}
}

func TestFindInstanceEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, ok := FindInstance(); ok {
		t.Error("FindInstance on an empty registry reported an instance")
	}
}
