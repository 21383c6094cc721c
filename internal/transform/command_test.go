package transform_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chromascale/internal/config"
	"chromascale/internal/transform"
)

type stubExecutor struct {
	lines  []string
	err    error
	output []byte
	calls  int
	args   [][]string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	s.calls++
	s.args = append(s.args, append([]string(nil), args...))
	for _, line := range s.lines {
		onOutput(line)
	}
	if s.output != nil {
		if err := os.WriteFile(argValue(args, "-o"), s.output, 0o644); err != nil {
			return err
		}
	}
	return s.err
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func defaultTransform() config.Transform {
	return config.Default().Transform
}

func TestNewCommandEngineRequiresBinary(t *testing.T) {
	cfg := defaultTransform()
	cfg.Binary = "  "
	if _, err := transform.NewCommandEngine(cfg); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestTransformBuildsArguments(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Transform)
		want   []string
	}{
		{
			name:   "auto device",
			mutate: func(*config.Transform) {},
			want:   []string{"-i", "in.png", "-o", "OUT", "-n", "realesrgan-x4plus", "-s", "4"},
		},
		{
			name: "cpu device with tile",
			mutate: func(c *config.Transform) {
				c.Device = "cpu"
				c.TileSize = 256
			},
			want: []string{"-i", "in.png", "-o", "OUT", "-n", "realesrgan-x4plus", "-s", "4", "-g", "-1", "-t", "256"},
		},
		{
			name: "gpu index with extra args",
			mutate: func(c *config.Transform) {
				c.Device = "1"
				c.Scale = 2
				c.ExtraArgs = []string{"-f", "png"}
			},
			want: []string{"-i", "in.png", "-o", "OUT", "-n", "realesrgan-x4plus", "-s", "2", "-g", "1", "-f", "png"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.png")
			cfg := defaultTransform()
			tc.mutate(&cfg)
			exec := &stubExecutor{output: []byte("upscaled")}
			engine, err := transform.NewCommandEngine(cfg, transform.WithExecutor(exec))
			if err != nil {
				t.Fatalf("NewCommandEngine: %v", err)
			}
			if err := engine.Transform(context.Background(), "in.png", out); err != nil {
				t.Fatalf("Transform: %v", err)
			}

			want := make([]string, len(tc.want))
			for i, arg := range tc.want {
				if arg == "OUT" {
					arg = out
				}
				want[i] = arg
			}
			if exec.calls != 1 || !reflect.DeepEqual(exec.args[0], want) {
				t.Fatalf("args = %v, want %v", exec.args, want)
			}
		})
	}
}

func TestTransformReportsExecutorFailureWithOutputTail(t *testing.T) {
	exec := &stubExecutor{
		lines: []string{"line 1", "", "line 2", "line 3", "line 4", "line 5", "vkCreateDevice failed"},
		err:   errors.New("exit status 255"),
	}
	engine, err := transform.NewCommandEngine(defaultTransform(), transform.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandEngine: %v", err)
	}

	err = engine.Transform(context.Background(), "in.png", filepath.Join(t.TempDir(), "out.png"))
	if err == nil {
		t.Fatal("expected error from executor")
	}
	msg := err.Error()
	if !strings.Contains(msg, "exit status 255") || !strings.Contains(msg, "vkCreateDevice failed") {
		t.Fatalf("expected exit status and output tail, got %q", msg)
	}
	if strings.Contains(msg, "line 1") {
		t.Fatalf("expected output tail to be bounded, got %q", msg)
	}
}

func TestTransformErrorsWhenNoOutputProduced(t *testing.T) {
	engine, err := transform.NewCommandEngine(defaultTransform(), transform.WithExecutor(&stubExecutor{}))
	if err != nil {
		t.Fatalf("NewCommandEngine: %v", err)
	}
	err = engine.Transform(context.Background(), "in.png", filepath.Join(t.TempDir(), "out.png"))
	if !errors.Is(err, transform.ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}

	empty := &stubExecutor{output: []byte{}}
	engine, err = transform.NewCommandEngine(defaultTransform(), transform.WithExecutor(empty))
	if err != nil {
		t.Fatalf("NewCommandEngine: %v", err)
	}
	err = engine.Transform(context.Background(), "in.png", filepath.Join(t.TempDir(), "out.png"))
	if !errors.Is(err, transform.ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput for empty output, got %v", err)
	}
}

type overlapExecutor struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (o *overlapExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	if o.inFlight.Add(1) > 1 {
		o.overlap.Store(true)
	}
	time.Sleep(10 * time.Millisecond)
	o.inFlight.Add(-1)
	return os.WriteFile(argValue(args, "-o"), []byte("x"), 0o644)
}

func TestTransformSerializesCalls(t *testing.T) {
	exec := &overlapExecutor{}
	engine, err := transform.NewCommandEngine(defaultTransform(), transform.WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandEngine: %v", err)
	}

	dir := t.TempDir()
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := filepath.Join(dir, string(rune('a'+i))+".png")
			if err := engine.Transform(context.Background(), "in.png", out); err != nil {
				t.Errorf("Transform: %v", err)
			}
		}()
	}
	wg.Wait()
	if exec.overlap.Load() {
		t.Fatal("transform invocations overlapped")
	}
}

func TestCommandExecutorRunsRealProcess(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-upscaler")
	body := "#!/bin/sh\necho starting\nwhile [ $# -gt 0 ]; do\n  if [ \"$1\" = \"-o\" ]; then echo upscaled > \"$2\"; fi\n  shift\ndone\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := defaultTransform()
	cfg.Binary = script
	engine, err := transform.NewCommandEngine(cfg)
	if err != nil {
		t.Fatalf("NewCommandEngine: %v", err)
	}

	out := filepath.Join(dir, "out.png")
	if err := engine.Transform(context.Background(), filepath.Join(dir, "in.png"), out); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		t.Fatalf("expected output written, stat=%v err=%v", info, err)
	}
}

func TestCommandExecutorReportsExitFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "failing-upscaler")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'no vulkan device' >&2\nexit 3\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := defaultTransform()
	cfg.Binary = script
	engine, err := transform.NewCommandEngine(cfg)
	if err != nil {
		t.Fatalf("NewCommandEngine: %v", err)
	}

	err = engine.Transform(context.Background(), filepath.Join(dir, "in.png"), filepath.Join(dir, "out.png"))
	if err == nil || !strings.Contains(err.Error(), "no vulkan device") {
		t.Fatalf("expected failure with stderr tail, got %v", err)
	}
}
