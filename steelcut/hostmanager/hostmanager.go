package hostmanager

import "context"

// HostInfo identifies the machine a run is applied to.
type HostInfo struct {
	Hostname      string
	OSVersion     string
	KernelVersion string
}

// HostManager reports identifying information about the local host.
type HostManager interface {
	Info(ctx context.Context) (HostInfo, error)
	Hostname(ctx context.Context) (string, error)
}
