package deployments

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Record string            `yaml:"record"`
			Alert  string            `yaml:"alert"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	rules := loadRules(t)

	records := map[string]bool{}
	alerts := map[string]string{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if strings.TrimSpace(rule.Expr) == "" {
				t.Fatalf("rule %q%q in group %q has no expr", rule.Record, rule.Alert, group.Name)
			}
			if rule.Record != "" {
				records[rule.Record] = true
			}
			if rule.Alert != "" {
				alerts[rule.Alert] = rule.Labels["severity"]
			}
		}
	}

	for _, name := range []string{
		"tabsql:http_error_rate_5m",
		"tabsql:query_duration_seconds_p95",
		"tabsql:ai_fallback_ratio_15m",
		"tabsql:query_failures_15m",
	} {
		if !records[name] {
			t.Fatalf("rules missing record %q", name)
		}
	}
	for _, name := range []string{
		"TabSQLHTTPErrorRateHigh",
		"TabSQLQueryLatencyP95High",
		"TabSQLAIFallbackHigh",
		"TabSQLQueryFailuresDetected",
	} {
		severity, ok := alerts[name]
		if !ok {
			t.Fatalf("rules missing alert %q", name)
		}
		if severity != "critical" && severity != "warning" {
			t.Fatalf("alert %q severity = %q", name, severity)
		}
	}
}

func TestPrometheusRulesReferenceExportedMetrics(t *testing.T) {
	path := filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", "tabsql_rules.yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	text := string(content)
	for _, metric := range []string{
		"tabsql_http_requests_total",
		"tabsql_query_duration_seconds_bucket",
		"tabsql_translations_total",
		"tabsql_ai_failures_total",
		"tabsql_query_executions_total",
	} {
		if !strings.Contains(text, metric) {
			t.Fatalf("rules do not reference %q", metric)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	path := filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}

	var scrape struct {
		RuleFiles     []string `yaml:"rule_files"`
		ScrapeConfigs []struct {
			JobName     string `yaml:"job_name"`
			MetricsPath string `yaml:"metrics_path"`
		} `yaml:"scrape_configs"`
	}
	if err := yaml.Unmarshal(content, &scrape); err != nil {
		t.Fatalf("parse scrape example: %v", err)
	}
	if len(scrape.RuleFiles) != 1 || scrape.RuleFiles[0] != "tabsql_rules.yaml" {
		t.Fatalf("rule_files = %v", scrape.RuleFiles)
	}
	if len(scrape.ScrapeConfigs) != 1 {
		t.Fatalf("scrape_configs = %+v", scrape.ScrapeConfigs)
	}
	job := scrape.ScrapeConfigs[0]
	if job.JobName != "tabsql-api" || job.MetricsPath != "/v1/metrics" {
		t.Fatalf("job = %+v", job)
	}
}

func loadRules(t *testing.T) ruleFile {
	t.Helper()
	path := filepath.Join(repoRoot(t), "deployments", "observability", "prometheus", "tabsql_rules.yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	var rules ruleFile
	if err := yaml.Unmarshal(content, &rules); err != nil {
		t.Fatalf("parse rules file: %v", err)
	}
	return rules
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
