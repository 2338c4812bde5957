package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"digitflow/internal/corrections"
	"digitflow/internal/model"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckArtifact reports the model artifact version. A missing artifact passes
// because the first load bootstraps a baseline.
func CheckArtifact(path string) Result {
	const name = "Model artifact"

	info, err := model.NewArtifactStore(path, nil, nil).Info()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !info.Exists {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (absent, bootstrapped on first load)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("version %s (%d bytes)", info.Version, info.Size)}
}

// CheckDataset verifies that the MNIST IDX files are present.
func CheckDataset(dir string) Result {
	const name = "MNIST dataset"

	if model.DatasetPresent(dir) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (present)", dir)}
	}
	return Result{Name: name, Detail: fmt.Sprintf("%s (missing; run 'digitflow dataset download')", dir)}
}

// CheckDatabase inspects the corrections schema. A database that does not
// exist yet passes; it is created on the first recorded correction.
func CheckDatabase(ctx context.Context, path string) Result {
	const name = "Corrections database"

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (absent, created on first correction)", path)}
	}
	store, err := corrections.OpenExisting(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("open failed (%v)", err)}
	}
	defer store.Close()

	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	if !health.TableExists {
		return Result{Name: name, Detail: "corrections table missing"}
	}
	if len(health.MissingColumns) > 0 {
		return Result{Name: name, Detail: fmt.Sprintf("missing columns: %s", strings.Join(health.MissingColumns, ", "))}
	}
	if !health.IntegrityCheck {
		return Result{Name: name, Detail: "integrity check failed"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d corrections", health.TotalRows)}
}

// InferenceServiceCheck names the result of CheckInferenceService.
const InferenceServiceCheck = "Inference service"

// CheckInferenceService probes the /health endpoint on the host that serves
// the reload URL.
func CheckInferenceService(ctx context.Context, reloadURL string) Result {
	const name = InferenceServiceCheck

	parsed, err := url.Parse(strings.TrimSpace(reloadURL))
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: "missing reload url"}
	}
	healthURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/health"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable at " + parsed.Host}
}
