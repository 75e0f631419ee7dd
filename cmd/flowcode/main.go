// Command flowcode compiles node graph documents to source code offline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/config"
	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
	"github.com/gyaneshwarpardhi/flowcode/internal/engine"
	"github.com/gyaneshwarpardhi/flowcode/internal/nodespec"
)

var (
	catalogPath string
	language    string
	instrument  bool
	selectGlob  string
	editorID    string
	jsonOutput  bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "flowcode",
	Short:         "Compile visual node graphs to source code",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile <graph.json>...",
	Short: "Generate code for one or more graph documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCompile,
}

var validateCmd = &cobra.Command{
	Use:   "validate <graph.json>...",
	Short: "Check graph documents for structural errors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "List the templates in the catalog",
	RunE:  runSpecs,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "configs/specs.yaml", "Path to the template catalog (empty for built-ins only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	compileCmd.Flags().StringVar(&language, "lang", codegen.PythonName, "Target language")
	compileCmd.Flags().BoolVar(&instrument, "instrument", false, "Emit capture calls for live inspection")
	compileCmd.Flags().StringVar(&selectGlob, "select", "", "Only generate nodes whose spec name matches this glob, plus their descendants")
	compileCmd.Flags().StringVar(&editorID, "editor-id", engine.DefaultEditorID, "Prefix for generated variable names")
	compileCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	specsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	rootCmd.AddCommand(compileCmd, validateCmd, specsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadCatalog() (*nodespec.Catalog, error) {
	if catalogPath == "" {
		return nodespec.NewCatalog(), nil
	}
	return nodespec.LoadFile(catalogPath)
}

func readGraph(path string) (dag.Graph, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return dag.Graph{}, fmt.Errorf("read %s: %w", path, err)
	}
	g, err := dag.Parse(data)
	if err != nil {
		return dag.Graph{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	lang, err := codegen.Languages().Get(language)
	if err != nil {
		return err
	}

	reqs := make([]*engine.Request, len(args))
	for i, path := range args {
		g, err := readGraph(path)
		if err != nil {
			return err
		}
		reqs[i] = &engine.Request{Name: path, EditorID: editorID, Graph: g, Instrument: instrument, Select: selectGlob}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	conf := config.CompilerConf{Workers: 4, QueueDepth: max(len(reqs), 4), TimeoutMs: 60_000}
	compiler := engine.New(ctx, cat, lang, conf, slog.Default())
	defer compiler.Shutdown()

	results := compiler.CompileBatch(ctx, reqs)

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	}
	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", res.Name, res.Error)
			continue
		}
		for _, d := range res.Diagnostics {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: warning: %s\n", res.Name, d.Message)
		}
		if jsonOutput {
			continue
		}
		if len(results) > 1 {
			fmt.Fprintf(out, "# %s (%s)\n", res.Name, res.Digest[:12])
		}
		fmt.Fprint(out, res.Code)
		if len(results) > 1 {
			fmt.Fprintln(out)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d graphs failed to compile", failed, len(results))
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		g, err := readGraph(path)
		if err != nil {
			failed++
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			continue
		}
		digest, err := dag.Digest(g)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d nodes, %d edges, %s)\n", path, g.NodeCount(), len(g.Edges), digest[:12])
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d graphs invalid", failed, len(args))
	}
	return nil
}

func runSpecs(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cat.Specs())
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tINPUTS\tOUTPUTS\tLANGUAGES")
	for _, s := range cat.Specs() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%v\n", s.Name, s.Category, len(s.Inputs), len(s.Outputs), s.Languages())
	}
	return tw.Flush()
}
