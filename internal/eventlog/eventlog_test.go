package eventlog

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundle-deployer/internal/models"
)

func event(project, environment string, status models.Status) models.DeploymentEvent {
	return models.DeploymentEvent{Project: project, Environment: environment, Status: status}
}

func TestListWithoutFiltersReturnsEverythingInOrder(t *testing.T) {
	log := New()
	want := []models.DeploymentEvent{
		event("A", "prod", models.StatusCreated),
		event("B", "dev", models.StatusCreated),
		event("A", "prod", models.StatusQueued),
	}
	for _, e := range want {
		log.Append(e)
	}

	first := slices.Collect(log.List(models.ListEventsRequest{}))
	second := slices.Collect(log.List(models.ListEventsRequest{}))

	assert.Equal(t, want, first)
	assert.Equal(t, first, second)
}

func TestListFilters(t *testing.T) {
	log := New()
	log.Append(event("A", "prod", models.StatusCreated))
	log.Append(event("a", "prod", models.StatusCreated))
	log.Append(event("A", "staging", models.StatusCreated))
	log.Append(event("B", "prod", models.StatusCreated))

	byProject := slices.Collect(log.List(models.ListEventsRequest{Project: "A"}))
	require.Len(t, byProject, 2)
	for _, e := range byProject {
		assert.Equal(t, "A", e.Project)
	}

	both := slices.Collect(log.List(models.ListEventsRequest{Project: "A", Environment: "prod"}))
	assert.Equal(t, []models.DeploymentEvent{event("A", "prod", models.StatusCreated)}, both)

	byEnv := slices.Collect(log.List(models.ListEventsRequest{Environment: "prod"}))
	assert.Len(t, byEnv, 3)
}

func TestListStopsWhenConsumerStops(t *testing.T) {
	log := New()
	for i := 0; i < 5; i++ {
		log.Append(event("A", "prod", models.StatusInProgress))
	}

	count := 0
	for range log.List(models.ListEventsRequest{}) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestConcurrentAppendAndList(t *testing.T) {
	log := New()
	const writers, perWriter = 8, 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			project := fmt.Sprintf("project-%d", w)
			for i := 0; i < perWriter; i++ {
				log.Append(models.DeploymentEvent{Project: project, Message: fmt.Sprint(i)})
				for range log.List(models.ListEventsRequest{Project: project}) {
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, log.Len())

	// Per-deployment order survives interleaving.
	for w := 0; w < writers; w++ {
		i := 0
		for e := range log.List(models.ListEventsRequest{Project: fmt.Sprintf("project-%d", w)}) {
			assert.Equal(t, fmt.Sprint(i), e.Message)
			i++
		}
		assert.Equal(t, perWriter, i)
	}
}
