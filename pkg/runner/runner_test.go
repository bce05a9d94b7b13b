package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/iamcore/pkg/runner"
)

func TestRunner(t *testing.T) {
	t.Run("StopsInReverseOrder", func(t *testing.T) {
		var order []string
		service := func(name string) runner.Service {
			return runner.ServiceFunc{
				ServiceName: name,
				StartFunc: func(context.Context) error {
					order = append(order, "start "+name)
					return nil
				},
				StopFunc: func(context.Context) error {
					order = append(order, "stop "+name)
					return nil
				},
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		r := runner.New([]runner.Service{service("a"), service("b")})

		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		// give the services time to start, then shut down
		time.Sleep(50 * time.Millisecond)
		cancel()

		require.NoError(t, <-done)
		assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, order)
	})

	t.Run("FailedStartStopsStartedServices", func(t *testing.T) {
		var stopped []string
		ok := runner.ServiceFunc{
			ServiceName: "ok",
			StopFunc: func(context.Context) error {
				stopped = append(stopped, "ok")
				return nil
			},
		}
		broken := runner.ServiceFunc{
			ServiceName: "broken",
			StartFunc:   func(context.Context) error { return errors.New("boom") },
		}

		err := runner.New([]runner.Service{ok, broken}).Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
		assert.Equal(t, []string{"ok"}, stopped)
	})

	t.Run("StopErrorsAreReported", func(t *testing.T) {
		bad := runner.ServiceFunc{
			ServiceName: "bad",
			StopFunc:    func(context.Context) error { return errors.New("stuck") },
		}

		ctx, cancel := context.WithCancel(context.Background())
		r := runner.New([]runner.Service{bad})

		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()
		time.Sleep(50 * time.Millisecond)
		cancel()

		err := <-done
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stop bad")
	})

	t.Run("HealthCheckProbesCheckers", func(t *testing.T) {
		r := runner.New([]runner.Service{
			healthyService{}, unhealthyService{},
		})
		err := r.HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sick")
	})
}

type healthyService struct{ runner.ServiceFunc }

func (healthyService) Name() string                      { return "healthy" }
func (healthyService) HealthCheck(context.Context) error { return nil }

type unhealthyService struct{ runner.ServiceFunc }

func (unhealthyService) Name() string                      { return "sick" }
func (unhealthyService) HealthCheck(context.Context) error { return errors.New("unhealthy") }
