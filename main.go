// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/agentdoc/internal/config"
	"github.com/cloudwego/agentdoc/internal/log"
	"github.com/cloudwego/agentdoc/internal/orchestrator"
	"github.com/cloudwego/agentdoc/internal/utils"
	"github.com/cloudwego/agentdoc/lang/docs"
	"github.com/cloudwego/agentdoc/llm/mcp"
	"github.com/cloudwego/agentdoc/version"
	"github.com/fsnotify/fsnotify"
)

const Usage = `agentdoc <Action> <Source> [Flags]
Action:
   generate     generate documentation for a repository URL or a local directory
   watch        generate documentation for a local directory and regenerate it on every change
   mcp          run as a MCP server over the documentation in the specific directory or bucket URL
   version      print the version of agentdoc
Source:
   https://github.com/owner/repo, https://gitlab.com/group/repo or git@host:owner/repo.git
   any other value is a local directory
`

// watchDelay is how long the source tree must stay quiet before a rebuild.
const watchDelay = 2 * time.Second

type cliOptions struct {
	configPath  string
	name        string
	ref         string
	language    string
	output      string
	include     StringArray
	exclude     StringArray
	maxSize     int64
	parallelism int
	strict      bool
	noCache     bool
	report      string
	apiKey      string
	token       string
}

func (c *cliOptions) register(flags *flag.FlagSet) {
	flags.StringVar(&c.configPath, "config", "", "config file (default: "+config.DefaultFile+" when present)")
	flags.StringVar(&c.name, "name", "", "project name (default: derived from the source)")
	flags.StringVar(&c.ref, "ref", "", "branch, tag or commit to fetch (remote repositories only)")
	flags.StringVar(&c.language, "language", "", "language of the generated documentation, e.g. english, chinese or zh")
	flags.StringVar(&c.output, "o", "", "output directory or bucket URL (s3://, gs://, mem://, file://)")
	flags.Var(&c.include, "include", "include glob, support multiple values")
	flags.Var(&c.exclude, "exclude", "exclude glob, support multiple values")
	flags.Int64Var(&c.maxSize, "max-size", 0, "skip files larger than this many bytes")
	flags.IntVar(&c.parallelism, "parallelism", 0, "max chapters generated concurrently (0: unbounded)")
	flags.BoolVar(&c.strict, "strict", false, "fail the run when any chapter fails")
	flags.BoolVar(&c.noCache, "no-cache", false, "do not read or write the LLM response cache")
	flags.StringVar(&c.report, "report", "", "write the run report as JSON to this file")
	flags.StringVar(&c.apiKey, "api-key", "", "API key of the model provider (default: $API_KEY)")
	flags.StringVar(&c.token, "token", "", "access token of the GitHub or GitLab repository (default: $GITHUB_TOKEN or $GITLAB_TOKEN)")
}

func main() {
	flags := flag.NewFlagSet("agentdoc", flag.ExitOnError)

	flagHelp := flags.Bool("h", false, "Show help message.")
	flagVerbose := flags.Bool("verbose", false, "Verbose mode.")
	flagLogJSON := flags.Bool("log-json", false, "Write logs as JSON.")

	var cli cliOptions
	cli.register(flags)

	flags.Usage = func() {
		fmt.Fprint(os.Stderr, Usage)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flags.PrintDefaults()
	}

	if len(os.Args) < 2 {
		flags.Usage()
		os.Exit(1)
	}
	action := strings.ToLower(os.Args[1])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch action {
	case "version":
		fmt.Fprintf(os.Stdout, "%s\n", version.Version)
		return

	case "generate":
		src := parseArgsAndFlags(flags, flagHelp, flagVerbose, flagLogJSON)
		err = runGenerate(ctx, flags, &cli, src)

	case "watch":
		src := parseArgsAndFlags(flags, flagHelp, flagVerbose, flagLogJSON)
		err = runWatch(ctx, flags, &cli, src)

	case "mcp":
		uri := parseArgsAndFlags(flags, flagHelp, flagVerbose, flagLogJSON)
		err = runMCP(ctx, uri, *flagVerbose)

	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", action)
		flags.Usage()
		os.Exit(1)
	}

	if err != nil {
		log.Error("%s failed: %v", action, err)
		stop()
		os.Exit(1)
	}
}

func parseArgsAndFlags(flags *flag.FlagSet, flagHelp, flagVerbose, flagLogJSON *bool) (uri string) {
	if len(os.Args) < 3 || strings.HasPrefix(os.Args[2], "-") {
		if len(os.Args) > 2 {
			flags.Parse(os.Args[2:])
		}
		if *flagHelp {
			flags.Usage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "argument Source is required\n")
		flags.Usage()
		os.Exit(1)
	}
	uri = os.Args[2]
	if len(os.Args) > 3 {
		flags.Parse(os.Args[3:])
	}

	if *flagHelp {
		flags.Usage()
		os.Exit(0)
	}
	if *flagLogJSON {
		log.SetOutput(os.Stderr, true)
	}
	if *flagVerbose {
		log.SetLogLevel(log.DebugLevel)
	}
	return uri
}

// loadOptions layers the command line over the configuration file and
// environment. Only flags given explicitly override configured values.
func loadOptions(flags *flag.FlagSet, cli *cliOptions, src string) (*config.Config, orchestrator.Options, error) {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return nil, orchestrator.Options{}, err
	}
	if cfg.Path != "" {
		log.Info("loaded config %s", cfg.Path)
	}
	if cli.noCache {
		cfg.Cache.Enabled = false
	}
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api-key":
			cfg.Model.APIKey = cli.apiKey
		case "token":
			// the fetcher picks the one matching the repository host
			cfg.Source.GitHubToken = cli.token
			cfg.Source.GitLabToken = cli.token
		}
	})
	opts := orchestrator.OptionsFromConfig(cfg)
	if isRepoURL(src) {
		opts.RepoURL = src
	} else {
		opts.LocalDir = src
	}
	opts.ProjectName = cli.name

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ref":
			opts.Ref = cli.ref
		case "language":
			opts.Language = cli.language
		case "o":
			opts.Output = cli.output
		case "include":
			opts.Include = cli.include
		case "exclude":
			opts.Exclude = cli.exclude
		case "max-size":
			opts.MaxFileSize = cli.maxSize
		case "parallelism":
			opts.Parallelism = cli.parallelism
		case "strict":
			opts.Strict = cli.strict
		}
	})
	if err := opts.Validate(); err != nil {
		return nil, opts, err
	}
	return cfg, opts, nil
}

func isRepoURL(src string) bool {
	return strings.HasPrefix(src, "http://") ||
		strings.HasPrefix(src, "https://") ||
		strings.HasPrefix(src, "git@")
}

func runGenerate(ctx context.Context, flags *flag.FlagSet, cli *cliOptions, src string) error {
	cfg, opts, err := loadOptions(flags, cli, src)
	if err != nil {
		return err
	}
	return generate(ctx, cfg, opts, cli.report)
}

func generate(ctx context.Context, cfg *config.Config, opts orchestrator.Options, reportPath string) error {
	deps, closeDeps, err := orchestrator.NewDeps(ctx, cfg, opts.Output)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDeps(); err != nil {
			log.Error("close: %v", err)
		}
	}()

	o, err := orchestrator.New(opts, deps)
	if err != nil {
		return err
	}
	res, runErr := o.Run(ctx)
	if res != nil {
		fmt.Fprint(os.Stdout, res.Summary())
		if reportPath != "" && res.Report != nil {
			if err := writeReport(reportPath, res); err != nil {
				log.Error("write report: %v", err)
			}
		}
	}
	return runErr
}

func writeReport(path string, res *orchestrator.Result) error {
	js, err := utils.MarshalJSONIndent(map[string]any{
		"run_id":           res.RunID,
		"output_dir":       res.OutputDir,
		"documents":        res.Documents,
		"chapter_failures": res.ChapterFailures,
		"report":           res.Report,
	})
	if err != nil {
		return err
	}
	return utils.MustWriteFile(path, []byte(js))
}

// runWatch generates once and then again each time the source directory
// settles after a change, until ctx is done. Failed rebuilds are logged
// and do not stop watching.
func runWatch(ctx context.Context, flags *flag.FlagSet, cli *cliOptions, src string) error {
	cfg, opts, err := loadOptions(flags, cli, src)
	if err != nil {
		return err
	}
	if opts.LocalDir == "" {
		return errors.New("watch needs a local directory")
	}
	if err := generate(ctx, cfg, opts, cli.report); err != nil {
		log.Error("generate: %v", err)
	}

	skip := func(string) bool { return false }
	if !docs.IsBucketURL(opts.Output) {
		if out, err := filepath.Abs(opts.Output); err == nil {
			skip = func(file string) bool {
				abs, err := filepath.Abs(file)
				return err == nil && (abs == out || strings.HasPrefix(abs, out+string(filepath.Separator)))
			}
		}
	}

	rebuild := utils.Debounce(ctx, watchDelay, func() {
		log.Info("source changed, regenerating %s", opts.LocalDir)
		if err := generate(ctx, cfg, opts, cli.report); err != nil {
			log.Error("generate: %v", err)
		}
	})
	err = utils.WatchDir(ctx, opts.LocalDir, func(op fsnotify.Op, file string) {
		if op == fsnotify.Chmod || skip(file) || strings.HasPrefix(filepath.Base(file), ".") {
			return
		}
		log.Debug("%s %s", op, file)
		rebuild()
	})
	if err != nil {
		return err
	}
	log.Info("watching %s", opts.LocalDir)
	<-ctx.Done()
	return nil
}

func runMCP(ctx context.Context, uri string, verbose bool) error {
	bucket, location, err := docs.OpenBucket(ctx, uri)
	if err != nil {
		return err
	}
	defer bucket.Close()

	if !docs.IsBucketURL(uri) {
		err := utils.WatchDir(ctx, location, func(op fsnotify.Op, file string) {
			if filepath.Ext(file) == ".md" {
				log.Info("documentation changed: %s %s", op, file)
			}
		})
		if err != nil {
			return err
		}
	}

	svr := mcp.NewServer(mcp.ServerOptions{
		ServerName:    "agentdoc",
		ServerVersion: version.Version,
		Verbose:       verbose,
		Library:       docs.NewLibrary(bucket),
	})
	return svr.ServeStdio()
}

type StringArray []string

func (s *StringArray) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func (s *StringArray) String() string {
	return strings.Join(*s, ",")
}
