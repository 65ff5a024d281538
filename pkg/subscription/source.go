package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// PlansListSource defines how plans are loaded into the catalog.
type PlansListSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory source with a deep copy of the given plans.
// Panics if no plans are provided.
func NewInMemSource(plans ...Plan) PlansListSource {
	if len(plans) < 1 {
		panic("subscription: at least one plan is required")
	}
	plansCopy := make(map[string]Plan, len(plans))
	for _, plan := range plans {
		plansCopy[plan.ID] = plan.clone()
	}
	return &inMemSource{plans: plansCopy}
}

// Load returns a copy of all plans held in memory.
func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plansCopy := make(map[string]Plan, len(s.plans))
	for id, plan := range s.plans {
		plansCopy[id] = plan.clone()
	}
	return plansCopy, nil
}

// yamlPlan mirrors Plan with the price kept as text so amounts like 29.99
// never pass through a float.
type yamlPlan struct {
	Plan  `yaml:",inline"`
	Price string `yaml:"price"`
}

type yamlDocument struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlSource struct {
	path   string
	reader io.Reader
}

// NewYAMLSource returns a source reading plans from a YAML file on every Load.
//
//	plans:
//	  - id: pro
//	    name: Pro
//	    rank: 2
//	    price: "29.00"
//	    currency: USD
//	    interval: monthly
//	    features: {analytics: true}
//	    limits: {users: 10, products: 1000}
func NewYAMLSource(path string) PlansListSource {
	return &yamlSource{path: path}
}

// NewYAMLSourceFromReader returns a source that decodes plans from r once.
func NewYAMLSourceFromReader(r io.Reader) PlansListSource {
	return &yamlSource{reader: r}
}

// Load decodes the YAML document into plans keyed by ID.
func (s *yamlSource) Load(ctx context.Context) (map[string]Plan, error) {
	r := s.reader
	if r == nil {
		f, err := os.Open(s.path)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}
		defer f.Close()
		r = f
	}

	var doc yamlDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[string]Plan, len(doc.Plans))
	for _, yp := range doc.Plans {
		plan := yp.Plan
		if yp.Price != "" {
			price, err := decimal.NewFromString(yp.Price)
			if err != nil {
				return nil, errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s: invalid price %q: %w", plan.ID, yp.Price, err))
			}
			plan.Price = price
		}
		if _, exists := plans[plan.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan ID %s", plan.ID))
		}
		plans[plan.ID] = plan
	}

	return plans, nil
}
