package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/pankaj-dahiya-devops/kube-posture/internal/config"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/policy"
	kube "github.com/pankaj-dahiya-devops/kube-posture/internal/providers/kubernetes"
	"github.com/pankaj-dahiya-devops/kube-posture/internal/scan"
)

// ScannerCheck reports whether an optional scanner binary is on PATH.
// Scanner absence never makes the environment unhealthy: a run without the
// binary still completes, it just records an INFO finding.
type ScannerCheck struct {
	Binary  string `json:"binary"`
	Present bool   `json:"present"`
	Path    string `json:"path,omitempty"`
}

// DoctorResult is the structured output of kp doctor. It can be serialised to
// JSON via --format=json or rendered as a human-readable table (default).
type DoctorResult struct {
	Kubernetes struct {
		KubeconfigOK bool   `json:"kubeconfig_ok"`
		Context      string `json:"context,omitempty"`
		APIReachable bool   `json:"api_reachable"`
		Error        string `json:"error,omitempty"`
	} `json:"kubernetes"`

	Scanners struct {
		Benchmark ScannerCheck `json:"benchmark"`
		Image     ScannerCheck `json:"image"`
	} `json:"scanners"`

	Policy struct {
		Path    string   `json:"path,omitempty"`
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"policy"`

	Output struct {
		Dir      string `json:"dir"`
		Writable bool   `json:"writable"`
		Error    string `json:"error,omitempty"`
	} `json:"output"`

	OverallHealthy bool `json:"overall_healthy"`
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			configPath, _ := cmd.Flags().GetString("config")
			kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
			contextName, _ := cmd.Flags().GetString("context")
			policyPath, _ := cmd.Flags().GetString("policy")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if kubeconfig != "" {
				cfg.Kubernetes.Kubeconfig = kubeconfig
			}
			if contextName != "" {
				cfg.Kubernetes.Context = contextName
			}

			result, err := runDoctor(
				cmd.Context(),
				kube.NewDefaultKubeClientProvider(cfg.Kubernetes.Kubeconfig),
				scan.NewExecRunner(),
				cfg,
				policyPath,
				cmd.OutOrStdout(),
				format,
			)
			if err != nil {
				// Rendering failure — let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main.go's
				// fmt.Fprintln(os.Stderr, err) path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures (e.g. JSON encode error).
// Callers must inspect result.OverallHealthy to determine whether the
// environment is healthy; runDoctor itself never returns an error for an
// unhealthy result so that no error text leaks to callers (such as main).
func runDoctor(ctx context.Context, kubeProvider kube.KubeClientProvider, runner scan.CommandRunner, cfg *config.Config, policyPath string, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, kubeProvider, runner, cfg, policyPath)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a DoctorResult.
// It performs no rendering; callers decide how to present the result.
func collectDoctorResult(ctx context.Context, kubeProvider kube.KubeClientProvider, runner scan.CommandRunner, cfg *config.Config, policyPath string) DoctorResult {
	var result DoctorResult

	// Kubernetes: kubeconfig load → context → API reachability probe.
	clientset, info, err := kubeProvider.ClientsetForContext(cfg.Kubernetes.Context)
	if err != nil {
		result.Kubernetes.Error = err.Error()
	} else {
		result.Kubernetes.KubeconfigOK = true
		result.Kubernetes.Context = info.ContextName
		_, err = clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{Limit: 1})
		if err != nil {
			result.Kubernetes.Error = err.Error()
		} else {
			result.Kubernetes.APIReachable = true
		}
	}

	// Scanners: informational PATH lookups, never unhealthy.
	result.Scanners.Benchmark = probeScanner(runner, cfg.Scanners.Benchmark.Binary)
	result.Scanners.Image = probeScanner(runner, cfg.Scanners.Image.Binary)

	// Policy: stat → load → validate. Only the default path is optional.
	explicit := policyPath != ""
	if policyPath == "" {
		policyPath = defaultPolicyPath
	}
	result.Policy.Path = policyPath
	_, statErr := os.Stat(policyPath)
	switch {
	case statErr == nil:
		result.Policy.Present = true
		policyCfg, loadErr := policy.LoadPolicy(policyPath)
		if loadErr != nil {
			result.Policy.Errors = []string{loadErr.Error()}
		} else {
			errs := policy.Validate(policyCfg, allRuleIDs())
			if len(errs) == 0 {
				result.Policy.Valid = true
			} else {
				for _, e := range errs {
					result.Policy.Errors = append(result.Policy.Errors, e.Error())
				}
			}
		}
	case os.IsNotExist(statErr) && !explicit:
		// Optional default file absent — not a problem.
	case os.IsNotExist(statErr) && explicit:
		result.Policy.Present = true
		result.Policy.Errors = []string{fmt.Sprintf("policy file %q not found", policyPath)}
	default:
		// Stat error other than "not found" — treat as present but unreadable.
		result.Policy.Present = true
		result.Policy.Errors = []string{statErr.Error()}
	}

	// Output directory: the probe creates the directory when missing, exactly
	// as a run would, then verifies a file can be written in it.
	result.Output.Dir = cfg.Output.Dir
	if err := probeOutputDir(cfg.Output.Dir); err != nil {
		result.Output.Error = err.Error()
	} else {
		result.Output.Writable = true
	}

	result.OverallHealthy = result.Kubernetes.KubeconfigOK &&
		result.Kubernetes.APIReachable &&
		(!result.Policy.Present || result.Policy.Valid) &&
		result.Output.Writable

	return result
}

// probeScanner looks the binary up on PATH via the runner.
func probeScanner(runner scan.CommandRunner, binary string) ScannerCheck {
	check := ScannerCheck{Binary: binary}
	if path, err := runner.LookPath(binary); err == nil {
		check.Present = true
		check.Path = path
	}
	return check
}

// probeOutputDir verifies the artifact directory can be created and written,
// using the same directory-creation path a real run uses.
func probeOutputDir(dir string) error {
	if err := scan.NewArtifactWriter(dir).EnsureDir(); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".kp-doctor-*")
	if err != nil {
		return fmt.Errorf("write probe in %q: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	fmt.Fprintln(w, "\nKubernetes:")
	if !result.Kubernetes.KubeconfigOK {
		doctorPrint(w, "Kubeconfig", "FAIL", result.Kubernetes.Error)
		doctorPrint(w, "Current Context", "FAIL", "skipped")
		doctorPrint(w, "API Reachable", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Kubeconfig", "OK", "")
		doctorPrint(w, "Current Context", "OK", result.Kubernetes.Context)
		if result.Kubernetes.APIReachable {
			doctorPrint(w, "API Reachable", "OK", "")
		} else {
			doctorPrint(w, "API Reachable", "FAIL", result.Kubernetes.Error)
		}
	}

	fmt.Fprintln(w, "\nScanners (optional):")
	renderScannerCheck(w, result.Scanners.Benchmark, "benchmark checks will be skipped")
	renderScannerCheck(w, result.Scanners.Image, "image scans will be skipped")

	fmt.Fprintln(w, "\nPolicy:")
	policyLabel := filepath.Base(result.Policy.Path) + " present"
	if !result.Policy.Present {
		doctorPrint(w, policyLabel, "Not found (optional)", "")
	} else {
		doctorPrint(w, policyLabel, "YES", "")
		if result.Policy.Valid {
			doctorPrint(w, "Policy valid", "OK", "")
		} else {
			for _, e := range result.Policy.Errors {
				doctorPrint(w, "Policy valid", "FAIL", e)
			}
		}
	}

	fmt.Fprintln(w, "\nOutput:")
	if result.Output.Writable {
		doctorPrint(w, "Directory writable", "OK", result.Output.Dir)
	} else {
		doctorPrint(w, "Directory writable", "FAIL", result.Output.Error)
	}
}

// renderScannerCheck writes one scanner line; absence is informational.
func renderScannerCheck(w io.Writer, check ScannerCheck, skipNote string) {
	if check.Present {
		doctorPrint(w, check.Binary, "FOUND", check.Path)
	} else {
		doctorPrint(w, check.Binary, "NOT FOUND", skipNote)
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
