// Package monitor checks whether OBS is running on this machine before the
// automation channel tries to reach it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNotRunning is returned by Probe.Check when no matching process exists.
var ErrNotRunning = errors.New("monitor: obs is not running")

type ProcessInfo struct {
	PID       int32
	Name      string
	StartTime time.Time
	CmdLine   string
}

// FindProcesses lists running processes whose executable name matches one of
// names. Processes that vanish or deny access mid-scan are skipped.
func FindProcesses(ctx context.Context, names []string) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var results []ProcessInfo
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || !matchName(name, names) {
			continue
		}

		info := ProcessInfo{PID: p.Pid, Name: name}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			info.StartTime = time.UnixMilli(ms)
		}
		if cmd, err := p.CmdlineWithContext(ctx); err == nil {
			info.CmdLine = cmd
		}
		results = append(results, info)
	}
	return results, nil
}

// matchName reports whether exe is one of names, ignoring case, any
// directory, and a trailing .exe.
func matchName(exe string, names []string) bool {
	exe = normalize(exe)
	if exe == "" {
		return false
	}
	for _, n := range names {
		if normalize(n) == exe {
			return true
		}
	}
	return false
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".exe")
}

// Probe checks for a running OBS before each automation connect attempt.
type Probe struct {
	names []string
	find  func(ctx context.Context, names []string) ([]ProcessInfo, error)
}

// NewProbe returns a probe for the given executable names. An empty list
// disables the check.
func NewProbe(names []string) *Probe {
	return &Probe{names: names, find: FindProcesses}
}

// Check returns ErrNotRunning when host is this machine and none of the
// probe's processes are running. Remote hosts are never checked.
func (p *Probe) Check(ctx context.Context, host string) error {
	if len(p.names) == 0 || !IsLocalHost(host) {
		return nil
	}
	found, err := p.find(ctx, p.names)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w (looked for %s)", ErrNotRunning, strings.Join(p.names, ", "))
	}
	return nil
}

// IsLocalHost reports whether host names this machine.
func IsLocalHost(host string) bool {
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
