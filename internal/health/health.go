package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Checker probes one upstream dependency of the pipeline.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function into a Checker.
type CheckerFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.CheckerName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

type componentStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Manager runs registered checks on demand and reports an overall status.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{timeout: 5 * time.Second, logger: logger}
}

func (m *Manager) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Status runs every check with a per-check timeout. Healthy means every
// component passed; the pipeline degrades per stage, so a failing dependency
// marks the service degraded rather than down.
func (m *Manager) Status(ctx context.Context) (bool, map[string]componentStatus) {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	healthy := true
	components := make(map[string]componentStatus, len(checkers))
	for _, checker := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := checker.Check(checkCtx)
		cancel()
		if err != nil {
			healthy = false
			components[checker.Name()] = componentStatus{Error: err.Error()}
			m.logger.Warn("Health check failed",
				zap.String("component", checker.Name()),
				zap.Error(err))
			continue
		}
		components[checker.Name()] = componentStatus{Healthy: true}
	}
	return healthy, components
}

// RegisterRoutes wires the health endpoints onto a mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", m.handleHealth)
	mux.HandleFunc("/health/live", m.handleLiveness)
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy, components := m.Status(r.Context())
	status := "healthy"
	if !healthy {
		// Failing upstreams degrade individual stages, they do not take the
		// whole service down.
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}

func (m *Manager) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// HTTPChecker probes a service URL with a GET request. Any response counts;
// only transport failure marks the dependency unhealthy.
func HTTPChecker(name, url string) Checker {
	client := &http.Client{Timeout: 5 * time.Second}
	return CheckerFunc{
		CheckerName: name,
		Fn: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			return nil
		},
	}
}
