//go:build integration

package firestore

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	pconfig "github.com/clothmarket/api/internal/platform/config"
	pfirestore "github.com/clothmarket/api/internal/platform/firestore"
	"github.com/clothmarket/api/internal/repositories"
)

func TestCounterRepositoryIntegration(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "counter-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close() })

	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	counterID := "orders-" + time.Now().UTC().Format("20060102150405.000")
	const workers = 12
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := repo.Next(ctx, counterID, 0)
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, val := range results {
		if val != int64(i+1) {
			t.Fatalf("expected gap-free sequence, got %v", results)
		}
	}

	_, err = repo.Next(ctx, "bad/id", 1)
	var counterErr *repositories.CounterError
	if !errors.As(err, &counterErr) || counterErr.Code != repositories.CounterErrorInvalidInput {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}
