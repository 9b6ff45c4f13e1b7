package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/breeze-dev/breeze"
	"github.com/breeze-dev/breeze/internal/errors"
)

// defaultConfigName is looked for in the served directory when --config is
// not given.
const defaultConfigName = "breeze.json"

type serveFlags struct {
	port       int
	host       string
	base       []string
	proxy      []string
	spa        bool
	open       bool
	watch      bool
	verbose    bool
	configPath string
	tlsCert    string
	tlsKey     string
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Serve a workspace",
		Long: `Serve a directory with proxying, SPA fallback, and tracing.

Options come from breeze.json in the served directory (or --config)
and are overridden by flags.

Examples:
  breeze serve
  breeze serve ./dist --port=8080 --spa
  breeze serve --proxy /api=http://localhost:9000 --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runServe(dir, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "Port to listen on (default 3000)")
	cmd.Flags().StringVarP(&flags.host, "host", "H", "", "Host to bind (default localhost)")
	cmd.Flags().StringArrayVarP(&flags.base, "base", "b", nil, "Additional content directory, dir or dir=/mount")
	cmd.Flags().StringArrayVar(&flags.proxy, "proxy", nil, "Proxy rule, /prefix=http://target")
	cmd.Flags().BoolVar(&flags.spa, "spa", false, "Serve index.html for client-side routes")
	cmd.Flags().BoolVarP(&flags.open, "open", "o", false, "Open browser on start")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "Reload browsers on file change")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose logging")
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default breeze.json in dir)")
	cmd.Flags().StringVar(&flags.tlsCert, "tls-cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&flags.tlsKey, "tls-key", "", "TLS key file")

	return cmd
}

func runServe(dir string, flags serveFlags) error {
	configPath := flags.configPath
	if configPath == "" {
		candidate := filepath.Join(dir, defaultConfigName)
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		}
	}

	load := func() (breeze.Options, error) {
		return buildOptions(dir, configPath, flags)
	}

	opts, err := load()
	if err != nil {
		return err
	}

	var serverOpts []breeze.Option
	if flags.watch {
		serverOpts = append(serverOpts, breeze.WithWatch(configPath, load))
	}

	server, err := breeze.New(opts, serverOpts...)
	if err != nil {
		return err
	}

	printBanner()
	info("serve")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return err
	}
	<-server.Ready()

	server.PrintPaths()
	success("Serving at %s", server.URL())
	if flags.watch {
		info("Watching for changes")
	}

	if flags.open {
		server.OpenPage("/")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	<-sigCh

	info("Shutting down...")
	return server.Stop(context.Background())
}

// fileOptions is the config file surface. Loose fields mirror
// breeze.Options; viper decodes them through mapstructure.
type fileOptions struct {
	ContentBase   any               `mapstructure:"contentBase"`
	Port          int               `mapstructure:"port"`
	Host          string            `mapstructure:"host"`
	Proxy         map[string]any    `mapstructure:"proxy"`
	Fallback      any               `mapstructure:"fallback"`
	Headers       map[string]string `mapstructure:"headers"`
	Trace         any               `mapstructure:"trace"`
	MimeOverrides map[string]any    `mapstructure:"mimeOverrides"`
	TLSCert       string            `mapstructure:"tlsCert"`
	TLSKey        string            `mapstructure:"tlsKey"`
}

// caseSensitiveFields mirrors the fileOptions fields whose map keys carry
// meaning: header names, proxy prefixes, extensions, and mounts.
type caseSensitiveFields struct {
	ContentBase   any               `json:"contentBase"`
	Proxy         map[string]any    `json:"proxy"`
	Headers       map[string]string `json:"headers"`
	MimeOverrides map[string]any    `json:"mimeOverrides"`
}

// restoreKeyCase re-decodes the case-sensitive fields straight from the
// JSON file. viper lowercases every key on the way in, which would turn
// "X-From-File" into "x-from-file" and "/API" into "/api".
func restoreKeyCase(configPath string, fc *fileOptions) error {
	if !strings.EqualFold(filepath.Ext(configPath), ".json") {
		return nil
	}
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return errors.FromError(err, errors.CategoryConfig,
			"cannot read config file "+configPath)
	}
	var cs caseSensitiveFields
	if err := json.Unmarshal(raw, &cs); err != nil {
		return errors.FromError(err, errors.CategoryConfig,
			"cannot parse config file "+configPath)
	}
	fc.ContentBase = cs.ContentBase
	fc.Proxy = cs.Proxy
	fc.Headers = cs.Headers
	fc.MimeOverrides = cs.MimeOverrides
	return nil
}

// buildOptions merges the config file and the command line. Flags win.
func buildOptions(dir, configPath string, flags serveFlags) (breeze.Options, error) {
	var fc fileOptions
	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return breeze.Options{}, errors.FromError(err, errors.CategoryConfig,
				"cannot read config file "+configPath).
				WithSuggestion("check the file exists and is valid JSON")
		}
		if err := v.Unmarshal(&fc); err != nil {
			return breeze.Options{}, errors.FromError(err, errors.CategoryConfig,
				"cannot parse config file "+configPath)
		}
		if err := restoreKeyCase(configPath, &fc); err != nil {
			return breeze.Options{}, err
		}
	}

	opts := breeze.Options{
		ContentBase:   fc.ContentBase,
		Port:          fc.Port,
		Host:          fc.Host,
		Proxy:         fc.Proxy,
		Fallback:      fc.Fallback,
		Headers:       fc.Headers,
		Trace:         fc.Trace,
		MimeOverrides: fc.MimeOverrides,
		TLSCert:       fc.TLSCert,
		TLSKey:        fc.TLSKey,
	}

	// The served directory is always a content root; extra --base
	// directories stack after it.
	bases := []any{dir}
	for _, b := range flags.base {
		bases = append(bases, b)
	}
	if opts.ContentBase != nil {
		bases = append(bases, opts.ContentBase)
	}
	opts.ContentBase = normalizeBases(bases)

	if flags.port != 0 {
		opts.Port = flags.port
	}
	if flags.host != "" {
		opts.Host = flags.host
	}
	if flags.spa {
		opts.Fallback = true
	}
	if flags.verbose {
		opts.Verbose = true
	}
	if flags.tlsCert != "" {
		opts.TLSCert = flags.tlsCert
	}
	if flags.tlsKey != "" {
		opts.TLSKey = flags.tlsKey
	}
	if opts.Trace == nil {
		// Tracing is the point of a dev server; default it on.
		opts.Trace = true
	}

	if len(flags.proxy) > 0 {
		if opts.Proxy == nil {
			opts.Proxy = make(map[string]any, len(flags.proxy))
		}
		for _, rule := range flags.proxy {
			prefix, target, ok := strings.Cut(rule, "=")
			if !ok {
				return breeze.Options{}, errors.Newf(errors.CategoryCLI,
					"invalid proxy rule %q", rule).
					WithSuggestion("use the form /prefix=http://host:port")
			}
			opts.Proxy[prefix] = target
		}
	}

	return opts, nil
}

// normalizeBases flattens the served dir, --base entries, and the config
// file's contentBase into one list the normalizer accepts. Entries of the
// form dir=/mount become mappings.
func normalizeBases(entries []any) any {
	var out []any
	for _, entry := range entries {
		s, ok := entry.(string)
		if !ok {
			out = append(out, entry)
			continue
		}
		if dir, mount, found := strings.Cut(s, "="); found {
			out = append(out, map[string]any{dir: mount})
		} else {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
