package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasi-crypto/cryptoctx"
	"github.com/wippyai/wasi-crypto/keystore"
	"github.com/wippyai/wasi-crypto/wasicrypto"
)

type runFlags struct {
	invoke      string
	keys        []string
	args        []string
	maxHandles  int
	interactive bool
	strict      bool
}

func newRunCommand(g *globalFlags) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <module.wasm>",
		Short: "Run a module with the crypto host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(cmd.Context(), g, &f, args[0])
		},
	}
	cmd.Flags().StringVar(&f.invoke, "invoke", "", "exported function to call instead of _start")
	cmd.Flags().StringArrayVar(&f.keys, "key", nil, "seed a key as [namespace/][id]=material; an empty id is derived from the material (repeatable)")
	cmd.Flags().StringArrayVar(&f.args, "arg", nil, "guest argument (repeatable)")
	cmd.Flags().IntVar(&f.maxHandles, "max-handles", 0, "live handle limit per resource kind (0 = default)")
	cmd.Flags().BoolVar(&f.strict, "strict-options", false, "accept only the option names each options type defines")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "show a live resource monitor")
	return cmd
}

// keyFlag is a parsed --key value. An empty id is derived from the
// material with keystore.DeriveKeyID.
type keyFlag struct {
	namespace string
	id        string
	material  string
}

func parseKeyFlag(s string) (keyFlag, error) {
	ref, material, ok := strings.Cut(s, "=")
	if !ok || material == "" {
		return keyFlag{}, fmt.Errorf("key %q: want [namespace/][id]=material", s)
	}
	var k keyFlag
	if ns, id, found := strings.Cut(ref, "/"); found {
		k.namespace, k.id = ns, id
	} else {
		k.id = ref
	}
	k.material = material
	return k, nil
}

// crypto bundles the host-side state one guest run needs.
type crypto struct {
	cc    *cryptoctx.Context
	host  *wasicrypto.Host
	store *keystore.Memory
}

func newCrypto(logger *zap.Logger, f *runFlags) (*crypto, error) {
	store := keystore.NewMemory(keystore.WithLogger(logger.Named("keystore")))
	for _, raw := range f.keys {
		k, err := parseKeyFlag(raw)
		if err != nil {
			return nil, err
		}
		id := []byte(k.id)
		if len(id) == 0 {
			if id, err = keystore.DeriveKeyID(k.namespace, []byte(k.material)); err != nil {
				return nil, err
			}
		}
		key, err := store.Put(k.namespace, id, []byte(k.material))
		if err != nil {
			return nil, err
		}
		logger.Info("key seeded",
			zap.String("namespace", key.Namespace),
			zap.Binary("id", key.ID),
			zap.Bool("derived", k.id == ""),
			zap.Stringer("version", key.Version),
			zap.Binary("fingerprint", key.Fingerprint[:8]))
	}

	opts := []cryptoctx.Option{
		cryptoctx.WithKeyStore(store),
		cryptoctx.WithMaxHandles(f.maxHandles),
	}
	if f.strict {
		opts = append(opts, cryptoctx.WithSchema(cryptoctx.DefaultSchema()))
	}
	cc, err := cryptoctx.New(opts...)
	if err != nil {
		return nil, err
	}
	host, err := wasicrypto.NewHost(cc, wasicrypto.WithLogger(logger.Named("wasicrypto")))
	if err != nil {
		_ = cc.Close()
		return nil, err
	}
	return &crypto{cc: cc, host: host, store: store}, nil
}

func runModule(ctx context.Context, g *globalFlags, f *runFlags, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interactive := f.interactive
	if interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "stdout is not a terminal; running without the monitor")
		interactive = false
	}

	// The monitor owns the terminal; keep stderr logging out of its way.
	lg := *g
	if interactive && lg.logFile == "" {
		lg.logLevel = "fatal"
	}
	logger, err := newLogger(&lg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	wasm, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}

	c, err := newCrypto(logger, f)
	if err != nil {
		return err
	}
	defer c.cc.Close()

	if interactive {
		return runMonitor(ctx, c, path, func(ctx context.Context) error {
			return execGuest(ctx, logger, c, wasm, f, path)
		})
	}

	if err := execGuest(ctx, logger, c, wasm, f, path); err != nil {
		return err
	}
	stats := c.cc.Stats()
	logger.Info("guest finished",
		zap.Int("options", stats.Options),
		zap.Int("array_outputs", stats.ArrayOutputs),
		zap.Int("key_managers", stats.KeyManagers))
	return nil
}

// execGuest instantiates the module and runs its entry point.
func execGuest(ctx context.Context, logger *zap.Logger, c *crypto, wasm []byte, f *runFlags, path string) error {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer r.Close(ctx)

	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	if _, err := c.host.Instantiate(ctx, r); err != nil {
		return err
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("compile module: %w", err)
	}

	cfg := wazero.NewModuleConfig().
		WithName("guest").
		WithArgs(append([]string{path}, f.args...)...).
		WithStdin(os.Stdin).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr)
	if f.invoke != "" {
		cfg = cfg.WithStartFunctions()
	}

	mod, err := r.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		if exitErr, ok := err.(*sys.ExitError); ok && exitErr.ExitCode() == 0 {
			return nil
		}
		return fmt.Errorf("instantiate module: %w", err)
	}
	defer mod.Close(ctx)

	if f.invoke == "" {
		return nil
	}
	fn := mod.ExportedFunction(f.invoke)
	if fn == nil {
		return fmt.Errorf("module has no export %q", f.invoke)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return fmt.Errorf("call %s: %w", f.invoke, err)
	}
	logger.Info("call returned", zap.String("function", f.invoke), zap.Uint64s("results", results))
	return nil
}

func newExportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exports",
		Short: "List the functions the crypto host module exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := cryptoctx.New()
			if err != nil {
				return err
			}
			defer cc.Close()
			host, err := wasicrypto.NewHost(cc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, wasicrypto.ModuleName)
			for _, name := range host.FunctionNames() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
}
