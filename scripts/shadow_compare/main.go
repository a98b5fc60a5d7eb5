// Command shadow_compare replays read-only requests against the portal
// gateway and the legacy intake portal and diffs the responses. Run it
// during rollout to catch contract drift before switching traffic over.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

// target is one request replayed against both stacks. IgnoreKeys lists
// JSON object keys stripped before comparison; lock state and response
// meta legitimately differ between the stacks.
type target struct {
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	Critical   bool     `json:"critical"`
	IgnoreKeys []string `json:"ignore_keys"`
}

type probe struct {
	status  int
	body    []byte
	elapsed time.Duration
}

type result struct {
	target  target
	gateway probe
	legacy  probe
	diffs   []string
	err     error
}

func (res result) clean() bool {
	return res.err == nil && len(res.diffs) == 0
}

type runner struct {
	client      *http.Client
	gatewayBase string
	legacyBase  string
	token       string
}

func main() {
	var (
		gatewayBase = flag.String("gateway-base", "http://localhost:8080", "portal gateway base URL")
		legacyBase  = flag.String("legacy-base", "http://localhost:3000", "legacy portal base URL")
		targetsPath = flag.String("targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "path to JSON targets file")
		token       = flag.String("auth-token", os.Getenv("SHADOW_COMPARE_TOKEN"), "staff bearer token sent to both stacks")
		timeout     = flag.Duration("timeout", 5*time.Second, "per-request timeout")
	)
	flag.Parse()

	targets, err := loadTargets(*targetsPath)
	if err != nil {
		log.Fatalf("load targets: %v", err)
	}

	r := &runner{
		client:      &http.Client{Timeout: *timeout},
		gatewayBase: strings.TrimRight(*gatewayBase, "/"),
		legacyBase:  strings.TrimRight(*legacyBase, "/"),
		token:       *token,
	}

	var breaking, optional int
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	for _, tgt := range targets {
		res := r.compare(tgt)
		report(res)
		if res.clean() {
			continue
		}
		if tgt.Critical {
			breaking++
		} else {
			optional++
		}
	}
	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optional)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Targets []target `json:"targets"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func (r *runner) compare(tgt target) result {
	res := result{target: tgt}

	gw, err := r.fetch(r.gatewayBase, tgt)
	if err != nil {
		res.err = fmt.Errorf("gateway request: %w", err)
		return res
	}
	legacy, err := r.fetch(r.legacyBase, tgt)
	if err != nil {
		res.err = fmt.Errorf("legacy request: %w", err)
		return res
	}
	res.gateway, res.legacy = gw, legacy

	if gw.status != legacy.status {
		res.diffs = append(res.diffs, fmt.Sprintf("status %d vs %d", gw.status, legacy.status))
	}
	if !bodiesEqual(gw.body, legacy.body, tgt.IgnoreKeys) {
		res.diffs = append(res.diffs, "body mismatch")
	}
	return res
}

func (r *runner) fetch(base string, tgt target) (probe, error) {
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequest(method, base+path, nil)
	if err != nil {
		return probe{}, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return probe{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return probe{}, err
	}
	return probe{status: resp.StatusCode, body: body, elapsed: time.Since(start)}, nil
}

// bodiesEqual compares payloads as JSON so field order and whitespace do
// not count as drift. Non-JSON bodies fall back to byte equality.
func bodiesEqual(a, b []byte, ignoreKeys []string) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	drop := make(map[string]struct{}, len(ignoreKeys))
	for _, k := range ignoreKeys {
		drop[k] = struct{}{}
	}
	return reflect.DeepEqual(scrub(av, drop), scrub(bv, drop))
}

// scrub strips ignored keys and folds whole floats to int64 so the two
// stacks' number encodings compare equal.
func scrub(v interface{}, drop map[string]struct{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k := range drop {
			delete(val, k)
		}
		for k, inner := range val {
			val[k] = scrub(inner, drop)
		}
		return val
	case []interface{}:
		for i, inner := range val {
			val[i] = scrub(inner, drop)
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return v
	}
}

func report(res result) {
	status := "OK"
	switch {
	case res.err != nil:
		status = "ERROR"
	case len(res.diffs) > 0:
		status = "DIFF"
	}
	fmt.Printf("[%s] %s %s\n", status, res.target.Method, res.target.Path)
	if res.err != nil {
		fmt.Printf("  error: %v\n", res.err)
		return
	}
	fmt.Printf("  gateway %d in %s | legacy %d in %s | critical=%t\n",
		res.gateway.status, res.gateway.elapsed, res.legacy.status, res.legacy.elapsed, res.target.Critical)
	for _, d := range res.diffs {
		fmt.Printf("  diff: %s\n", d)
	}
}
