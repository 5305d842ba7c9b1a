package runtime

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/container-compose/internal/core/compose"
	"github.com/artpar/container-compose/internal/core/deployment"
	"github.com/artpar/container-compose/internal/shell/project"
)

func testProject(t *testing.T, doc string) *project.Project {
	t.Helper()
	d, err := compose.Decode([]byte(doc))
	require.NoError(t, err)
	return &project.Project{
		Name:       "shop",
		WorkingDir: t.TempDir(),
		Home:       t.TempDir(),
		Document:   d,
		DotEnv:     map[string]string{},
		Env:        deployment.Env{Process: map[string]string{}},
	}
}

func newTestOrchestrator(inv Invoker, logs *bytes.Buffer) *Orchestrator {
	opts := Options{Readiness: fastReadiness}
	if logs != nil {
		opts.Logs = logs
	}
	return NewOrchestrator(NewCLI(inv, "container", nil), nil, opts)
}

// runOrder returns container names in the order run was invoked.
func runOrder(inv *fakeInvoker) []string {
	var names []string
	for _, c := range inv.withPrefix("run ") {
		names = append(names, containerArg(strings.Fields(c)))
	}
	return names
}

// runningInspect answers inspect with a running, health-less container.
func runningInspect(args []string) Result {
	if len(args) > 0 && args[0] == "inspect" {
		return Result{Stdout: `[{"status":"running"}]`}
	}
	return Result{}
}

// =============================================================================
// Up Tests
// =============================================================================

func TestUp_StartsInDependencyOrder(t *testing.T) {
	p := testProject(t, `
services:
  web:
    image: nginx
    depends_on: [app]
    networks: [front]
  app:
    image: shop/app
    depends_on: [db]
    volumes:
      - data:/var/lib/app
      - ./config:/etc/app:ro
  db:
    image: postgres:15
networks:
  front: {}
volumes:
  data: {}
`)
	inv := newFakeInvoker(runningInspect)
	o := newTestOrchestrator(inv, nil)

	report, err := o.Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	cmds := inv.commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, "network create front", cmds[0])
	assert.Equal(t, []string{"shop-db", "shop-app", "shop-web"}, runOrder(inv))
	assert.ElementsMatch(t, []string{"db", "app", "web"}, report.Started)
	assert.NotEmpty(t, report.RunID)

	named := filepath.Join(p.Home, ".containers", "Volumes", "shop", "data")
	assert.DirExists(t, named)
	assert.DirExists(t, filepath.Join(p.WorkingDir, "config"))

	app := inv.withPrefix("run -d --name shop-app")
	require.Len(t, app, 1)
	assert.Contains(t, app[0], "-v "+named+":/var/lib/app")
	assert.Contains(t, app[0], "-v "+filepath.Join(p.WorkingDir, "config")+":/etc/app:ro")
	assert.Contains(t, app[0], "--label container-compose.run-id="+report.RunID)

	web := inv.withPrefix("run -d --name shop-web")
	require.Len(t, web, 1)
	assert.Contains(t, web[0], "--network front")
}

func TestUp_CycleAbortsBeforeAnyInvocation(t *testing.T) {
	p := testProject(t, `
services:
  a: {image: x, depends_on: [b]}
  b: {image: x, depends_on: [a]}
networks:
  front: {}
`)
	inv := newFakeInvoker(nil)

	_, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	assert.ErrorIs(t, err, deployment.ErrCyclicDependency)
	assert.Empty(t, inv.commands())
}

func TestUp_MissingRequiredVariableAbortsBeforeAnyInvocation(t *testing.T) {
	p := testProject(t, `
services:
  db: {image: postgres}
  app:
    image: shop/app
    environment:
      DATABASE_URL: ${DATABASE_URL:?DATABASE_URL is required}
`)
	inv := newFakeInvoker(nil)

	_, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, deployment.ErrMissingVariable)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Empty(t, inv.commands())
}

func TestUp_UnknownService(t *testing.T) {
	p := testProject(t, "services:\n  web: {image: nginx}\n")
	inv := newFakeInvoker(nil)

	_, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Services: []string{"nope"}, Detach: true})
	assert.ErrorIs(t, err, ErrUnknownService)
	assert.Empty(t, inv.commands())
}

func TestUp_SelectionPullsInDependencies(t *testing.T) {
	p := testProject(t, `
services:
  docs: {image: docs}
  db: {image: postgres}
  web: {image: nginx, depends_on: [db]}
`)
	inv := newFakeInvoker(runningInspect)

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Services: []string{"web"}, Detach: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"shop-db", "shop-web"}, runOrder(inv))
	assert.NotContains(t, report.Started, "docs")
}

func TestUp_FailureIsolatedToDependents(t *testing.T) {
	p := testProject(t, `
services:
  db: {image: postgres}
  app: {image: shop/app, depends_on: [db]}
  web: {image: nginx, depends_on: [app]}
  docs: {image: docs}
`)
	inv := newFakeInvoker(func(args []string) Result {
		if args[0] == "run" && containerArg(args) == "shop-db" {
			return Result{ExitCode: 125, Stderr: "image not found"}
		}
		return runningInspect(args)
	})

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"shop-db", "shop-docs"}, sortedCopy(runOrder(inv)))
	assert.Equal(t, []string{"docs"}, report.Started)

	require.Len(t, report.Failed, 3)
	assert.ErrorIs(t, report.Failed["db"], ErrInvocationFailed)
	assert.ErrorIs(t, report.Failed["app"], ErrDependencyFailed)
	assert.ErrorIs(t, report.Failed["web"], ErrDependencyFailed)

	err = report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServicesFailed)
	assert.ErrorIs(t, err, ErrInvocationFailed)
	assert.Contains(t, err.Error(), "app, db, web")
}

func TestUp_OptionalDependencyFailureDoesNotBlock(t *testing.T) {
	p := testProject(t, `
services:
  cache: {image: redis}
  app:
    image: shop/app
    depends_on:
      cache: {condition: service_started, required: false}
`)
	inv := newFakeInvoker(func(args []string) Result {
		if args[0] == "run" && containerArg(args) == "shop-cache" {
			return Result{ExitCode: 1, Stderr: "boom"}
		}
		return Result{}
	})

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, report.Started)
	assert.Contains(t, report.Failed, "cache")
}

func TestUp_WaitsForHealthyDependency(t *testing.T) {
	p := testProject(t, `
services:
  db: {image: postgres}
  app:
    image: shop/app
    depends_on:
      db: {condition: service_healthy}
`)
	var mu sync.Mutex
	polls := 0
	inv := newFakeInvoker(func(args []string) Result {
		if args[0] != "inspect" {
			return Result{}
		}
		mu.Lock()
		defer mu.Unlock()
		polls++
		if polls < 3 {
			return Result{Stdout: `[{"State":{"Status":"running","Running":true,"Health":{"Status":"starting"}}}]`}
		}
		return Result{Stdout: `[{"State":{"Status":"running","Running":true,"Health":{"Status":"healthy"}}}]`}
	})

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 3, polls)
	assert.Equal(t, []string{"shop-db", "shop-app"}, runOrder(inv))
	assert.Equal(t, []string{"inspect shop-db"}, lastDistinct(inv.withPrefix("inspect")))
}

func TestUp_CompletedSuccessfullyFailureFailsDependent(t *testing.T) {
	p := testProject(t, `
services:
  migrate: {image: shop/migrate}
  app:
    image: shop/app
    depends_on:
      migrate: {condition: service_completed_successfully}
`)
	inv := newFakeInvoker(func(args []string) Result {
		if args[0] == "inspect" {
			return Result{Stdout: `[{"State":{"Status":"exited","ExitCode":1}}]`}
		}
		return Result{}
	})

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"migrate"}, report.Started)
	assert.ErrorIs(t, report.Failed["app"], ErrDependencyFailed)
	assert.Equal(t, []string{"shop-migrate"}, runOrder(inv))
}

func TestUp_ExternalNetworkIsNotCreated(t *testing.T) {
	p := testProject(t, `
services:
  web: {image: nginx, networks: [corp, front]}
networks:
  corp:
    external: true
  front:
    driver: bridge
`)
	inv := newFakeInvoker(nil)

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Equal(t, []string{"network create --driver bridge front"}, inv.withPrefix("network"))
	run := inv.withPrefix("run")
	require.Len(t, run, 1)
	assert.Contains(t, run[0], "--network corp --network front")
}

func TestUp_BuildsMissingImage(t *testing.T) {
	p := testProject(t, `
services:
  api:
    build: ./api
`)
	inv := newFakeInvoker(func(args []string) Result {
		if args[0] == "image" {
			return Result{ExitCode: 1, Stderr: "not found"}
		}
		return Result{}
	})

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	cmds := inv.commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, "image inspect api:latest", cmds[0])
	assert.Equal(t, "build --tag api:latest "+filepath.Join(p.WorkingDir, "api"), cmds[1])
	assert.True(t, strings.HasPrefix(cmds[2], "run -d --name shop-api"))
	assert.True(t, strings.HasSuffix(cmds[2], "api:latest"))
}

func TestUp_ForcedBuildSkipsImageCheck(t *testing.T) {
	p := testProject(t, `
services:
  api:
    image: registry/api:2
    build: {context: ., dockerfile: Dockerfile.dev}
`)
	inv := newFakeInvoker(nil)

	_, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true, Build: true, NoCache: true})
	require.NoError(t, err)

	assert.Empty(t, inv.withPrefix("image"))
	builds := inv.withPrefix("build")
	require.Len(t, builds, 1)
	assert.Contains(t, builds[0], "--tag registry/api:2")
	assert.Contains(t, builds[0], "--no-cache")
}

func TestUp_PresentImageIsNotRebuilt(t *testing.T) {
	p := testProject(t, "services:\n  api:\n    build: .\n")
	inv := newFakeInvoker(nil)

	_, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	assert.Empty(t, inv.withPrefix("build"))
}

func TestUp_BuildFailureFailsServiceAndDependents(t *testing.T) {
	p := testProject(t, `
services:
  api: {build: .}
  web: {image: nginx, depends_on: [api]}
`)
	inv := newFakeInvoker(func(args []string) Result {
		switch args[0] {
		case "image", "build":
			return Result{ExitCode: 1, Stderr: "failed"}
		}
		return Result{}
	})

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	assert.Empty(t, runOrder(inv))
	assert.ErrorIs(t, report.Failed["api"], ErrInvocationFailed)
	assert.ErrorIs(t, report.Failed["web"], ErrDependencyFailed)
}

func TestUp_ReplacesExistingContainer(t *testing.T) {
	p := testProject(t, "services:\n  web: {image: nginx}\n")
	var mu sync.Mutex
	runs := 0
	inv := newFakeInvoker(func(args []string) Result {
		if args[0] != "run" {
			return Result{}
		}
		mu.Lock()
		defer mu.Unlock()
		runs++
		if runs == 1 {
			return Result{ExitCode: 1, Stderr: "container shop-web already exists"}
		}
		return Result{}
	})

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	require.NoError(t, report.Err())

	cmds := inv.commands()
	require.Len(t, cmds, 4)
	assert.Equal(t, "stop shop-web", cmds[1])
	assert.Equal(t, "rm shop-web", cmds[2])
	assert.Equal(t, []string{"shop-web", "shop-web"}, runOrder(inv))
}

func TestUp_NullServiceIsSkipped(t *testing.T) {
	p := testProject(t, `
services:
  placeholder:
  app: {image: shop/app, depends_on: [placeholder]}
`)
	inv := newFakeInvoker(nil)

	report, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"placeholder"}, report.Skipped)
	assert.Equal(t, []string{"app"}, report.Started)
}

func TestUp_EnvironmentLayering(t *testing.T) {
	p := testProject(t, `
services:
  app:
    image: shop/app:${TAG}
    env_file: [app.env]
    environment:
      LEVEL: inline
      URL: postgres://${DB_HOST}/app
`)
	require.NoError(t, os.WriteFile(filepath.Join(p.WorkingDir, "app.env"), []byte("LEVEL=file\nFROM_FILE=1\n"), 0o644))
	p.DotEnv = map[string]string{"TAG": "3", "DB_HOST": "db"}
	p.Env = deployment.Env{Process: map[string]string{"TAG": "4"}, File: p.DotEnv}
	inv := newFakeInvoker(nil)

	_, err := newTestOrchestrator(inv, nil).Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)

	run := inv.withPrefix("run")
	require.Len(t, run, 1)
	assert.Contains(t, run[0], "-e DB_HOST=db -e FROM_FILE=1 -e LEVEL=inline -e TAG=3 -e URL=postgres://db/app")
	assert.True(t, strings.HasSuffix(run[0], "shop/app:4"))
}

func TestUp_FollowsLogsWhenAttached(t *testing.T) {
	p := testProject(t, "services:\n  web: {image: nginx}\n  db: {image: postgres}\n")
	inv := newFakeInvoker(nil)
	var logs bytes.Buffer

	_, err := newTestOrchestrator(inv, &logs).Up(context.Background(), p, UpOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"logs --follow shop-web", "logs --follow shop-db"}, inv.withPrefix("logs"))
	assert.Contains(t, logs.String(), "web | log line\n")
	assert.Contains(t, logs.String(), "db | log line\n")
}

func TestUp_ParallelismLimit(t *testing.T) {
	p := testProject(t, `
services:
  a: {image: x}
  b: {image: x, depends_on: [a]}
  c: {image: x, depends_on: [b]}
  d: {image: x}
`)
	inv := newFakeInvoker(nil)
	o := NewOrchestrator(NewCLI(inv, "container", nil), nil, Options{Parallelism: 1, Readiness: fastReadiness})

	report, err := o.Up(context.Background(), p, UpOptions{Detach: true})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"shop-a", "shop-b", "shop-c", "shop-d"}, runOrder(inv))
}

// =============================================================================
// Down Tests
// =============================================================================

func TestDown_ReverseOrder(t *testing.T) {
	p := testProject(t, `
services:
  web: {image: nginx, depends_on: [app]}
  app: {image: shop/app, depends_on: [db]}
  db: {image: postgres}
`)
	inv := newFakeInvoker(nil)

	report, err := newTestOrchestrator(inv, nil).Down(context.Background(), p, DownOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"stop shop-web", "stop shop-app", "stop shop-db"}, inv.commands())
	assert.Equal(t, []string{"web", "app", "db"}, report.Stopped)
}

func TestDown_FilterTouchesOnlySelected(t *testing.T) {
	p := testProject(t, `
services:
  web: {image: nginx, depends_on: [api]}
  api: {image: shop/api, depends_on: [db]}
  db: {image: postgres}
  cache: {image: redis}
`)
	inv := newFakeInvoker(nil)

	report, err := newTestOrchestrator(inv, nil).Down(context.Background(), p, DownOptions{Services: []string{"db", "web"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"stop shop-web", "stop shop-db"}, inv.commands())
	assert.Equal(t, []string{"web", "db"}, report.Stopped)
}

func TestDown_RemoveAndContinueOnFailure(t *testing.T) {
	p := testProject(t, `
services:
  db: {image: postgres, container_name: primary-db}
  app: {image: shop/app, depends_on: [db]}
`)
	inv := newFakeInvoker(func(args []string) Result {
		if args[0] == "stop" && args[1] == "shop-app" {
			return Result{ExitCode: 1, Stderr: "no such container"}
		}
		return Result{}
	})

	report, err := newTestOrchestrator(inv, nil).Down(context.Background(), p, DownOptions{Remove: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"stop shop-app", "stop primary-db", "rm primary-db"}, inv.commands())
	assert.Equal(t, []string{"db"}, report.Stopped)
	assert.ErrorIs(t, report.Failed["app"], ErrInvocationFailed)
	assert.ErrorIs(t, report.Err(), ErrServicesFailed)
}

func TestDown_MissingRequiredVariableAbortsBeforeAnyInvocation(t *testing.T) {
	p := testProject(t, `
services:
  a: {image: x, container_name: "${NAME:?NAME must be set}"}
  b: {image: x, depends_on: [a]}
  c: {image: x, depends_on: [b]}
`)
	inv := newFakeInvoker(nil)

	report, err := newTestOrchestrator(inv, nil).Down(context.Background(), p, DownOptions{Remove: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, deployment.ErrMissingVariable)
	assert.Contains(t, err.Error(), "NAME must be set")
	assert.Empty(t, inv.commands())
	assert.Empty(t, report.Stopped)
}

func TestDown_Cycle(t *testing.T) {
	p := testProject(t, "services:\n  a: {image: x, depends_on: [a]}\n")
	inv := newFakeInvoker(nil)

	_, err := newTestOrchestrator(inv, nil).Down(context.Background(), p, DownOptions{})
	var ce *deployment.CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "a", ce.Service)
	assert.Empty(t, inv.commands())
}

// =============================================================================
// Helpers
// =============================================================================

func TestPrefixWriter(t *testing.T) {
	var out bytes.Buffer
	w := &prefixWriter{prefix: "db | ", out: &out}

	_, err := w.Write([]byte("one\ntw"))
	require.NoError(t, err)
	_, err = w.Write([]byte("o\n"))
	require.NoError(t, err)
	assert.Equal(t, "db | one\ndb | two\n", out.String())
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func lastDistinct(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
