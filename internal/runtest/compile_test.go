package runtest

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"testrig/internal/domain/harness"
	"testrig/internal/procio"
)

func TestMakeCompileArgsDefaults(t *testing.T) {
	t.Parallel()

	c := testContext(harness.RunPass)
	args := c.makeCompileArgs(c.paths.File, targetLocation{file: "out"})

	require.Equal(t, c.paths.File, args[0])
	require.Contains(t, args, "--target=x86_64-unknown-linux-gnu")
	require.Contains(t, strings.Join(args, " "), "-L "+c.cfg.BuildBase)
	require.Contains(t, strings.Join(args, " "), "-C prefer-dynamic")
	require.Contains(t, strings.Join(args, " "), "-o out")
	require.NotContains(t, strings.Join(args, " "), "--error-format")
}

func TestMakeCompileArgsCompileFailJSON(t *testing.T) {
	t.Parallel()

	c := testContext(harness.CompileFail)
	joined := strings.Join(c.makeCompileArgs(c.paths.File, targetLocation{file: "out"}), " ")
	require.Contains(t, joined, "--error-format json")

	// An error-pattern test matches rendered text, not JSON.
	c.props.ErrorPatterns = []string{"mismatched types"}
	joined = strings.Join(c.makeCompileArgs(c.paths.File, targetLocation{file: "out"}), " ")
	require.NotContains(t, joined, "--error-format")
}

func TestMakeCompileArgsForceHost(t *testing.T) {
	t.Parallel()

	c := testContext(harness.RunPass)
	c.cfg.Target = "aarch64-unknown-linux-gnu"
	c.cfg.TargetFlags = "-C target-cpu=generic"
	c.cfg.HostFlags = "-C opt-level=1"
	c.props.ForceHost = true

	joined := strings.Join(c.makeCompileArgs(c.paths.File, targetLocation{file: "out"}), " ")
	require.Contains(t, joined, "--target=x86_64-unknown-linux-gnu")
	require.Contains(t, joined, "-C opt-level=1")
	require.NotContains(t, joined, "target-cpu")
}

func TestMakeCompileArgsCustomTarget(t *testing.T) {
	t.Parallel()

	c := testContext(harness.RunPass)
	c.props.CompileFlags = []string{"--target", "thumbv6m-none-eabi"}

	args := c.makeCompileArgs(c.paths.File, targetLocation{file: "out"})
	for _, a := range args {
		require.False(t, strings.HasPrefix(a, "--target="),
			"test-supplied --target must suppress the default: %v", args)
	}
}

func TestMakeCompileArgsRevisionAndIncremental(t *testing.T) {
	t.Parallel()

	c := testContext(harness.RunPass)
	c.revision = "fast"
	c.props.IncrementalDir = "/build/inc"

	joined := strings.Join(c.makeCompileArgs(c.paths.File, targetLocation{file: "out"}), " ")
	require.Contains(t, joined, "--cfg fast")
	require.Contains(t, joined, "-Z incremental=/build/inc")
	require.Contains(t, joined, "-Z incremental-verify-ich")
}

func TestMakeCompileArgsUserFlagsLast(t *testing.T) {
	t.Parallel()

	c := testContext(harness.RunPass)
	c.props.CompileFlags = []string{"-O", "-C", "lto"}

	args := c.makeCompileArgs(c.paths.File, targetLocation{file: "out"})
	require.Equal(t, []string{"-O", "-C", "lto"}, args[len(args)-3:])
}

func TestMakeCompileArgsWasmSkipsPreferDynamic(t *testing.T) {
	t.Parallel()

	c := testContext(harness.RunPass)
	c.cfg.Target = "wasm32-unknown-unknown"
	joined := strings.Join(c.makeCompileArgs(c.paths.File, targetLocation{dir: "/out"}), " ")
	require.NotContains(t, joined, "prefer-dynamic")
	require.Contains(t, joined, "--out-dir /out")
}

func TestComposeEnv(t *testing.T) {
	t.Parallel()

	dylib := procio.DylibEnvVar()
	ambient := []string{"HOME=/home/u", dylib + "=/usr/lib"}
	env := composeEnv(ambient, runEnv{
		libPath: "/toolchain/lib",
		auxPath: "/build/case.aux",
		extra:   []harness.EnvVar{{Key: "RUN_VAR", Value: "1"}},
	})

	want := dylib + "=" + strings.Join(
		[]string{"/toolchain/lib", "/build/case.aux", "/usr/lib"},
		string(os.PathListSeparator))
	require.Contains(t, env, want)
	require.Equal(t, "RUN_VAR=1", env[len(env)-1])
	require.Contains(t, env, "HOME=/home/u")
}

func TestComposeEnvWithoutAmbientPath(t *testing.T) {
	t.Parallel()

	env := composeEnv([]string{"HOME=/home/u"}, runEnv{libPath: "/lib"})
	require.Contains(t, env, procio.DylibEnvVar()+"=/lib")
}
