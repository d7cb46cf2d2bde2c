package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pelletier/go-toml"
	"github.com/pterm/pterm"

	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
	"github.com/w2k-star-forks/zksync-compiler-solidity/evmla"
	"github.com/w2k-star-forks/zksync-compiler-solidity/optable"
	"github.com/w2k-star-forks/zksync-compiler-solidity/transpiler"
)

var args struct {
	Inputs       []string `arg:"positional,required" help:"assembly listing files (.json, legacy assembler format)"`
	Deploy       bool     `arg:"-d,--deploy" help:"treat inputs as deploy code instead of runtime code"`
	OutputDir    string   `arg:"-o,--output" default:"." help:"directory for generated modules and manifests"`
	Config       string   `arg:"--config" help:"optional zkevm.toml build configuration"`
	Jobs         int      `arg:"-j,--jobs" help:"worker pool size (default: one per CPU)"`
	TableVersion string   `arg:"--table-version" help:"pin the opcode semantic table version"`
	Verbose      bool     `arg:"-v,--verbose" help:"enable debug logging"`
}

// fileConfig mirrors the zkevm.toml layout. Command-line flags override
// anything set here.
type fileConfig struct {
	Jobs         int    `toml:"jobs"`
	TableVersion string `toml:"table_version"`
}

func main() {
	arg.MustParse(&args)

	level := log.LevelInfo
	if args.Verbose {
		level = log.LevelDebug
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, false)))

	cfg := transpiler.Config{Jobs: args.Jobs, TableVersion: args.TableVersion}
	if args.Config != "" {
		if err := mergeConfig(args.Config, &cfg); err != nil {
			pterm.Error.Printfln("config: %v", err)
			os.Exit(1)
		}
	}

	ctx := optable.ContextRuntime
	if args.Deploy {
		ctx = optable.ContextDeploy
	}

	units := make([]transpiler.Unit, 0, len(args.Inputs))
	for _, path := range args.Inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			pterm.Error.Printfln("%s: %v", path, err)
			os.Exit(1)
		}
		instrs, err := evmla.DecodeListing(data, path)
		if err != nil {
			pterm.Error.Printfln("%s: %v", path, err)
			os.Exit(1)
		}
		units = append(units, transpiler.Unit{
			Name:    unitName(path, ctx),
			Context: ctx,
			Asm:     instrs,
		})
	}

	results, buildErr := transpiler.Build(context.Background(), cfg, units)

	failed := false
	for _, r := range results {
		report(r)
		if r.Failed {
			failed = true
			continue
		}
		if err := write(r); err != nil {
			pterm.Error.Printfln("%s: %v", r.Name, err)
			failed = true
		}
	}
	if buildErr != nil && results == nil {
		pterm.Error.Printfln("%v", buildErr)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}

func mergeConfig(path string, cfg *transpiler.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return err
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = fc.Jobs
	}
	if cfg.TableVersion == "" {
		cfg.TableVersion = fc.TableVersion
	}
	return nil
}

func unitName(path string, ctx optable.CodeContext) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fmt.Sprintf("%s_%s", base, ctx)
}

func report(r transpiler.Result) {
	if len(r.Diagnostics) == 0 && !r.Failed {
		return
	}
	pterm.DefaultSection.Println(r.Name)
	for _, d := range r.Diagnostics {
		line := fmt.Sprintf("[%s] %s: %s", d.Code, d.Location, d.Message)
		if d.Severity == diag.SeverityError {
			pterm.Error.Println(line)
		} else {
			pterm.Warning.Println(line)
		}
	}
}

func write(r transpiler.Result) error {
	if err := os.MkdirAll(args.OutputDir, 0o755); err != nil {
		return err
	}
	modPath := filepath.Join(args.OutputDir, r.Name+".ll")
	if err := os.WriteFile(modPath, []byte(r.Module), 0o644); err != nil {
		return err
	}

	manifest, err := json.MarshalIndent(r.Manifest, "", "  ")
	if err != nil {
		return err
	}
	manPath := filepath.Join(args.OutputDir, r.Name+".manifest.json")
	if err := os.WriteFile(manPath, manifest, 0o644); err != nil {
		return err
	}

	pterm.Success.Printfln("%s -> %s", r.Name, modPath)
	return nil
}
