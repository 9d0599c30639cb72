package endpoint

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// Supplier hands out upstream base URLs in round-robin order
type Supplier interface {
	Get() string
	Len() int
}

type supplier struct {
	endpoints []string
	current   int
	mutex     sync.Mutex
}

// NewStaticSupplier rotates over endpoints without probing them.
func NewStaticSupplier(endpoints ...string) Supplier {
	cleaned := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e = strings.TrimRight(strings.TrimSpace(e), "/"); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	return &supplier{endpoints: cleaned}
}

// NewSupplier probes every endpoint's health path in parallel and keeps the healthy ones.
// When none answers, all endpoints are kept so requests can still fail over at call time.
func NewSupplier(ctx context.Context, endpoints []string, healthPath string) Supplier {
	candidates := NewStaticSupplier(endpoints...).(*supplier).endpoints
	if len(candidates) <= 1 {
		return &supplier{endpoints: candidates}
	}

	log.Infof("🔄 Probing %d upstream endpoints in parallel...", len(candidates))

	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0)
	defer client.Close()

	healthy := make([]bool, len(candidates))
	semaphore := make(chan struct{}, 8)

	var wg sync.WaitGroup
	for i, endpoint := range candidates {
		wg.Add(1)

		go func(index int, endpoint string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if isHealthy(ctx, client, endpoint+healthPath) {
				healthy[index] = true
				log.Infof("✅ Endpoint %s is healthy", endpoint)
			} else {
				log.Infof("❌ Endpoint %s is not responding, skipping", endpoint)
			}
		}(i, endpoint)
	}
	wg.Wait()

	// Keep configuration order so rotation is predictable.
	valid := make([]string, 0, len(candidates))
	for i, endpoint := range candidates {
		if healthy[i] {
			valid = append(valid, endpoint)
		}
	}

	if len(valid) == 0 {
		log.Warnf("⚠️ No upstream endpoint passed the health check, keeping all %d", len(candidates))
		valid = candidates
	}

	log.Infof("✅ Endpoint supplier initialized with %d of %d endpoints", len(valid), len(candidates))
	return &supplier{endpoints: valid}
}

// Get returns the next endpoint in round-robin fashion
func (s *supplier) Get() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.endpoints) == 0 {
		return ""
	}

	endpoint := s.endpoints[s.current]
	s.current = (s.current + 1) % len(s.endpoints)

	return endpoint
}

func (s *supplier) Len() int {
	return len(s.endpoints)
}

func isHealthy(ctx context.Context, client *resty.Client, url string) bool {
	resp, err := client.R().
		SetContext(ctx).
		Get(url)

	if err != nil {
		log.Debugf("Health check failed for %s: %v", url, err)
		return false
	}

	if resp.IsError() {
		log.Debugf("Health check failed for %s with status: %s", url, resp.Status())
		return false
	}

	return true
}
