// Package extract implements generate command: builds critical CSS for
// pages given on the command line.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"critcss/config"
	"critcss/critical"
	"critcss/css"
	"critcss/cssfiles"
	"critcss/minify"
	"critcss/probe"
	"critcss/probe/browser"
	"critcss/state"
)

// StdoutDestination sends generated css to standard output.
const StdoutDestination = "-"

func Run(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("generate")

	if cmd.Args().Len() == 0 {
		return errors.New("no page urls have been specified")
	}
	urls, err := pageURLs(cmd.Args().Slice())
	if err != nil {
		return err
	}

	if vps := cmd.StringSlice("viewport"); len(vps) > 0 {
		env.Cfg.Generation.Viewports = vps
	}
	if cmd.IsSet("success-ratio") {
		env.Cfg.Generation.SuccessRatio = cmd.Float("success-ratio")
	}

	env.Overwrite = cmd.Bool("overwrite")

	// command line takes precedence over configuration
	cs := env.Cfg.Fetch.Charset
	if cmd.IsSet("force-charset") {
		cs = cmd.String("force-charset")
	}
	env.Charset = forcedCharset(cs, log)

	pp, err := browser.New(ctx, &env.Cfg.Browser, env.Log)
	if err != nil {
		return fmt.Errorf("unable to start browser: %w", err)
	}

	dst := cmd.String("destination")
	log.Info("Processing starting", zap.Strings("pages", urls), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, env, urls, dst, pp)
}

// process generates critical css with given probe and saves it. Probe is
// always cleaned up.
func process(ctx context.Context, env *state.LocalEnv, urls []string, dst string, pp probe.Probe) error {
	log := env.Logger().Named("generate")

	req, err := newRequest(env.Cfg, urls, log)
	if err != nil {
		pp.Cleanup()
		return err
	}
	var trace critical.Trace
	if env.Rpt != nil {
		req.Trace = &trace
	}

	m, err := minify.New(env.Cfg.Generation.Minifier)
	if err != nil {
		pp.Cleanup()
		return err
	}
	fetcher, err := cssfiles.NewHTTPFetcher(&env.Cfg.Fetch, env.Charset, env.Logger())
	if err != nil {
		pp.Cleanup()
		return err
	}

	text, warnings, err := critical.Generate(ctx, req, pp, fetcher, m, env.Logger())
	for _, w := range warnings {
		log.Warn("Problem during generation", zap.Error(w))
	}
	if env.Rpt != nil && trace.RunID != "" {
		env.Rpt.StoreData("run/"+trace.RunID+".txt", []byte(dumpTrace(&trace)))
		if err == nil {
			env.Rpt.StoreData("run/"+trace.RunID+".css", []byte(text))
		}
	}
	if err != nil {
		return err
	}

	if dst == StdoutDestination {
		_, err := os.Stdout.WriteString(text)
		return err
	}

	name, terr := buildFileName(env.Cfg.Generation.OutputNameTemplate, newValues(urls[0], trace.RunID, time.Now()))
	if terr != nil {
		log.Warn("Unable to prepare output filename, using default", zap.Error(terr))
	}
	path, err := buildOutputPath(dst, name)
	if err != nil {
		return err
	}
	if err := writeOutput(path, []byte(text), env.Overwrite); err != nil {
		return err
	}
	log.Info("Critical css saved", zap.String("file", path), zap.Int("bytes", len(text)), zap.Int("warnings", len(warnings)))
	return nil
}

func newRequest(cfg *config.Config, urls []string, log *zap.Logger) (*critical.Request, error) {
	viewports, err := cfg.Generation.ParsedViewports()
	if err != nil {
		return nil, err
	}
	filters, err := buildFilters(&cfg.Generation.Filters)
	if err != nil {
		return nil, err
	}
	return &critical.Request{
		URLs:         urls,
		Viewports:    viewports,
		Filters:      filters,
		SuccessRatio: cfg.Generation.SuccessRatio,
		Concurrency:  cfg.Generation.Concurrency,
		Progress: func(step, total int) {
			log.Debug("Progress", zap.Int("step", step), zap.Int("total", total))
		},
	}, nil
}

// pageURLs checks that every argument is absolute page url.
func pageURLs(args []string) ([]string, error) {
	urls := make([]string, 0, len(args))
	for _, a := range args {
		u, err := url.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("bad page url %q: %w", a, err)
		}
		switch u.Scheme {
		case "http", "https", "file":
		default:
			return nil, fmt.Errorf("bad page url %q: absolute http(s) or file url expected", a)
		}
		urls = append(urls, u.String())
	}
	return urls, nil
}

// buildFilters turns configured exclusion patterns into filters, nil filter
// keeps everything.
func buildFilters(conf *config.FiltersConfig) (css.Filters, error) {
	props, err := compileAll(conf.ExcludeProperties)
	if err != nil {
		return css.Filters{}, fmt.Errorf("bad property filter: %w", err)
	}
	atRules, err := compileAll(conf.ExcludeAtRules)
	if err != nil {
		return css.Filters{}, fmt.Errorf("bad at-rule filter: %w", err)
	}

	var f css.Filters
	if len(props) > 0 {
		f.Properties = func(name, _ string) bool { return !matchAny(props, name) }
	}
	if len(atRules) > 0 {
		f.AtRules = func(name string) bool { return !matchAny(atRules, name) }
	}
	return f, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// forcedCharset returns encoding named by IANA name or nil when name is
// empty or unknown.
func forcedCharset(name string, log *zap.Logger) encoding.Encoding {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", name), zap.Error(err))
		return nil
	}
	n, _ := ianaindex.IANA.Name(enc)
	log.Debug("Forcefully decoding all stylesheets", zap.String("charset", n))
	return enc
}
