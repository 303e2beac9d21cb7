// Command hdist-run-job is the CLI entry point for the job runner: it
// loads a job-spec document, resolves `--virtual`/`--override-env`/
// `--config-file`/`--profile` flags into a runner.Request, and executes
// it.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/logging"
	"github.com/thewtex/hashdist/pkg/profile"
	"github.com/thewtex/hashdist/pkg/resolve"
	"github.com/thewtex/hashdist/pkg/runner"
)

var (
	overrideEnv []string
	virtualMap  []string
	configFile  string
	tempDir     string
	debug       bool
	cwd         string
	artifactDir string
	profilePath string
)

var rootCmd = &cobra.Command{
	Use:   "hdist-run-job JOBSPEC",
	Short: "Runs a hashdist job spec",
	Long: `Runs a hashdist job spec: resolves its imports, interprets its
command tree, and supervises every spawned child process.

Example:
$ hdist-run-job build.yaml --override-env CFLAGS=-O2 --cwd /tmp/build`,
	Args: cobra.ExactArgs(1),
	RunE: runCmd,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.Flags().StringArrayVar(&overrideEnv, "override-env", nil, "key=value environment override, repeatable; wins over import bindings")
	rootCmd.Flags().StringArrayVar(&virtualMap, "virtual", nil, "virtual:tag=id mapping, repeatable")
	rootCmd.Flags().StringVar(&configFile, "config-file", "", "path to a file whose contents become HDIST_CONFIG")
	rootCmd.Flags().StringVar(&tempDir, "temp-dir", "", "adopt this (empty) directory as the run's scratch dir instead of creating one")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "drop into an interactive shell instead of spawning cmd/hit leaves")
	rootCmd.Flags().StringVar(&cwd, "cwd", ".", "starting working directory, absolutized and bound to PWD")
	rootCmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "directory this job's own build output occupies, bound to ARTIFACT")
	rootCmd.Flags().StringVar(&profilePath, "profile", "", "path to a profile document whose merged parameters become additional override-env entries")
}

func runCmd(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read job spec %q: %w", args[0], err)
	}
	spec, err := jobspec.Load(data)
	if err != nil {
		return err
	}

	override, err := parseKeyValues(overrideEnv)
	if err != nil {
		return err
	}
	if profilePath != "" {
		params, err := loadProfileParameters(profilePath)
		if err != nil {
			return err
		}
		// Explicit --override-env entries win over profile parameters.
		for k, v := range override {
			params[k] = v
		}
		override = params
	}
	virtuals, err := parseVirtuals(virtualMap)
	if err != nil {
		return err
	}

	var config string
	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to read config file %q: %w", configFile, err)
		}
		config = string(raw)
	}

	logger := logging.New(logrus.New())

	result, err := runner.Run(runner.Request{
		Spec:        spec,
		Resolver:    noopResolver{},
		Virtuals:    virtuals,
		ArtifactDir: artifactDir,
		OverrideEnv: override,
		Config:      config,
		Cwd:         cwd,
		TempDirFs:   afero.NewOsFs(),
		TempDirPath: tempDir,
		Debug:       debug,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if result.LastEnv != nil {
		logger.Log(logging.DEBUG, fmt.Sprintf("final env: %v", result.LastEnv.Map()))
	}
	return nil
}

// noopResolver is a placeholder ArtifactResolver until this CLI gains an
// actual artifact store backend; every import fails UnbuiltDependency
// rather than silently succeeding.
type noopResolver struct{}

func (noopResolver) Resolve(id string) (string, bool) { return "", false }

// loadProfileParameters loads the profile document at path (recursively
// resolving its extends chain) and returns its fully-merged parameters,
// ready to seed the run's override-env map.
func loadProfileParameters(path string) (map[string]string, error) {
	p, err := profile.Load(path)
	if err != nil {
		return nil, err
	}
	params, err := p.Parameters()
	if err != nil {
		return nil, fmt.Errorf("failed to merge parameters for profile %q: %w", path, err)
	}
	return params, nil
}

func parseKeyValues(entries []string) (map[string]string, error) {
	out := map[string]string{}
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --override-env entry %q, want key=value", e)
		}
		out[k] = v
	}
	return out, nil
}

func parseVirtuals(entries []string) (resolve.Virtuals, error) {
	out := resolve.Virtuals{}
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --virtual entry %q, want virtual:tag=id", e)
		}
		out[k] = v
	}
	return out, nil
}

func main() {
	Execute()
}
