// Command shadow_compare replays a fixed set of requests against a legacy
// Asterism server and the Go server and reports where their answers differ.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Body comparison modes.
const (
	compareStatus = "status"
	compareJSON   = "json"
)

type target struct {
	Name     string            `json:"name"`
	Method   string            `json:"method"`
	Path     string            `json:"path"`
	Form     map[string]string `json:"form,omitempty"`
	Cookie   string            `json:"cookie,omitempty"`
	Compare  string            `json:"compare,omitempty"`
	Critical bool              `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target         target
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

func (c comparison) differs() bool {
	return c.Error != nil || !c.StatusMatch || !c.BodyMatch
}

type options struct {
	goBase      string
	legacyBase  string
	targetsPath string
	timeout     time.Duration
	vars        map[string]string
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := newCommand(logger, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand(logger *zap.Logger, out io.Writer) *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "shadow_compare",
		Short:         "Compare legacy and Go Asterism servers request by request",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, err := loadTargets(opts.targetsPath)
			if err != nil {
				logger.Error("failed to load targets", zap.String("path", opts.targetsPath), zap.Error(err))
				return err
			}
			client := &http.Client{
				Timeout: opts.timeout,
				CheckRedirect: func(*http.Request, []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}
			breaking, optional := run(cmd.Context(), client, opts, targets, out)
			logger.Info("shadow compare finished", zap.Int("breaking", breaking), zap.Int("optional", optional))
			if breaking > 0 {
				return fmt.Errorf("%d breaking diffs", breaking)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.goBase, "go-base", "http://localhost:8080", "Go server base URL")
	flags.StringVar(&opts.legacyBase, "legacy-base", "http://localhost:3000", "Legacy server base URL")
	flags.StringVar(&opts.targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flags.StringToStringVar(&opts.vars, "var", nil, "Placeholder values substituted into paths, e.g. --var signature=abc")
	return cmd
}

func run(ctx context.Context, client *http.Client, opts options, targets []target, out io.Writer) (breaking, optional int) {
	comparisons := make([]comparison, 0, len(targets))
	for _, t := range targets {
		t.Method = strings.ToUpper(strings.TrimSpace(t.Method))
		if t.Method == "" {
			t.Method = http.MethodGet
		}
		t.Path = expand(t.Path, opts.vars, url.PathEscape)
		t.Cookie = expand(t.Cookie, opts.vars, nil)
		comp := compareTarget(ctx, client, opts.goBase, opts.legacyBase, t)
		if comp.differs() {
			if t.Critical {
				breaking++
			} else {
				optional++
			}
		}
		comparisons = append(comparisons, comp)
	}
	printReport(out, comparisons)
	fmt.Fprintf(out, "Breaking diffs: %d, Optional diffs: %d\n", breaking, optional)
	return breaking, optional
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

// expand replaces {name} placeholders in s with values from vars, passed
// through escape when it is set.
func expand(s string, vars map[string]string, escape func(string) string) string {
	for k, v := range vars {
		if escape != nil {
			v = escape(v)
		}
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func compareTarget(ctx context.Context, client *http.Client, goBase, legacyBase string, tgt target) comparison {
	comp := comparison{Target: tgt}
	goStatus, goBody, goDur, goErr := performRequest(ctx, client, goBase, tgt)
	legacyStatus, legacyBody, legacyDur, legacyErr := performRequest(ctx, client, legacyBase, tgt)
	comp.DurationGo = goDur
	comp.DurationLegacy = legacyDur

	if goErr != nil {
		comp.Error = fmt.Errorf("go request failed: %w", goErr)
		return comp
	}
	if legacyErr != nil {
		comp.Error = fmt.Errorf("legacy request failed: %w", legacyErr)
		return comp
	}

	comp.GoStatus = goStatus
	comp.LegacyStatus = legacyStatus
	comp.StatusMatch = goStatus == legacyStatus

	switch tgt.Compare {
	case "", compareStatus:
		// The two servers word their error pages differently.
		comp.BodyMatch = true
	case compareJSON:
		comp.BodyMatch = jsonEqual(goBody, legacyBody)
	default:
		comp.BodyMatch = bytes.Equal(bytes.TrimSpace(goBody), bytes.TrimSpace(legacyBody))
	}
	return comp
}

func performRequest(ctx context.Context, client *http.Client, base string, tgt target) (int, []byte, time.Duration, error) {
	method := tgt.Method
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if len(tgt.Form) > 0 {
		form := url.Values{}
		for k, v := range tgt.Form {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(base, "/")+path, body)
	if err != nil {
		return 0, nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if tgt.Cookie != "" {
		req.Header.Set("Cookie", tgt.Cookie)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, err
	}
	return resp.StatusCode, raw, time.Since(start), nil
}

func jsonEqual(a, b []byte) bool {
	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	return reflect.DeepEqual(aj, bj)
}

func printReport(out io.Writer, results []comparison) {
	fmt.Fprintln(out, "Shadow Compare Report")
	fmt.Fprintln(out, "======================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if res.differs() {
			status = "DIFF"
		}
		label := res.Target.Name
		if label == "" {
			label = res.Target.Path
		}
		fmt.Fprintf(out, "[%s] %s %s\n", status, res.Target.Method, label)
		fmt.Fprintf(out, "  Go Status: %d (%s)\n", res.GoStatus, res.DurationGo)
		fmt.Fprintf(out, "  Legacy Status: %d (%s)\n", res.LegacyStatus, res.DurationLegacy)
		if res.Error != nil {
			fmt.Fprintf(out, "  Error: %v\n", res.Error)
		} else {
			fmt.Fprintf(out, "  Status match: %t | Body match: %t | Critical: %t\n", res.StatusMatch, res.BodyMatch, res.Target.Critical)
		}
	}
}
