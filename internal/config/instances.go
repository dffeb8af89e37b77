package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Instance describes a running thinkt-live server.
type Instance struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	StateDir  string    `json:"state_dir,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// BaseURL returns the server's http root, e.g. http://localhost:7434.
func (i Instance) BaseURL() string {
	return "http://" + net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// InstancesPath returns the path of the registry of running servers.
func InstancesPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "instances.json"), nil
}

// RegisterInstance records inst, dropping entries for dead processes and
// any previous entry with the same pid.
func RegisterInstance(inst Instance) error {
	path, err := InstancesPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	instances, _ := readInstances(path)
	kept := instances[:0]
	for _, i := range cleanStale(instances) {
		if i.PID != inst.PID {
			kept = append(kept, i)
		}
	}
	return writeInstances(path, append(kept, inst))
}

// UnregisterInstance removes the entry for pid.
func UnregisterInstance(pid int) error {
	path, err := InstancesPath()
	if err != nil {
		return err
	}
	instances, err := readInstances(path)
	if err != nil {
		return err
	}
	kept := make([]Instance, 0, len(instances))
	for _, i := range instances {
		if i.PID != pid {
			kept = append(kept, i)
		}
	}
	return writeInstances(path, kept)
}

// ListInstances returns the live servers, newest first. Stale entries are
// pruned from the registry as a side effect.
func ListInstances() ([]Instance, error) {
	path, err := InstancesPath()
	if err != nil {
		return nil, err
	}
	instances, err := readInstances(path)
	if err != nil {
		return nil, err
	}

	live := cleanStale(instances)
	if len(live) != len(instances) {
		_ = writeInstances(path, live)
	}
	sort.SliceStable(live, func(a, b int) bool {
		return live[a].StartedAt.After(live[b].StartedAt)
	})
	return live, nil
}

// FindInstance returns the most recently started live server.
func FindInstance() (Instance, bool) {
	instances, err := ListInstances()
	if err != nil || len(instances) == 0 {
		return Instance{}, false
	}
	return instances[0], true
}

func readInstances(path string) ([]Instance, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var instances []Instance
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return instances, nil
}

func writeInstances(path string, instances []Instance) error {
	data, err := json.MarshalIndent(instances, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func cleanStale(instances []Instance) []Instance {
	live := make([]Instance, 0, len(instances))
	for _, i := range instances {
		if isProcessAlive(i.PID) {
			live = append(live, i)
		}
	}
	return live
}
