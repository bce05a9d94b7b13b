package runner

import "context"

// Service is one unit of the process lifecycle: the admin HTTP server, the
// projection registry, the Kafka forwarder.
type Service interface {
	// Name identifies the service in logs and errors.
	Name() string

	// Start brings the service up. It must return once the service is ready
	// and must respect ctx cancellation.
	Start(ctx context.Context) error

	// Stop shuts the service down within the ctx deadline.
	Stop(ctx context.Context) error
}

// HealthChecker is implemented by services that can report their health.
type HealthChecker interface {
	Service

	HealthCheck(ctx context.Context) error
}

// ServiceFunc adapts start/stop funcs into a Service.
type ServiceFunc struct {
	ServiceName string
	StartFunc   func(ctx context.Context) error
	StopFunc    func(ctx context.Context) error
}

func (s ServiceFunc) Name() string { return s.ServiceName }

func (s ServiceFunc) Start(ctx context.Context) error {
	if s.StartFunc == nil {
		return nil
	}
	return s.StartFunc(ctx)
}

func (s ServiceFunc) Stop(ctx context.Context) error {
	if s.StopFunc == nil {
		return nil
	}
	return s.StopFunc(ctx)
}
