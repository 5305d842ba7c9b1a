package deployment

import (
	"github.com/artpar/container-compose/internal/core/compose"
	"github.com/samber/lo"
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

// NamedService pairs a service with its key in the document.
// Service is nil for a null entry.
type NamedService struct {
	Name    string
	Service *compose.Service
}

// Resolution is the output of TopologicalSort.
type Resolution struct {
	// Order places every dependency before its dependents.
	Order []NamedService
	// DependedBy maps a service to the services that declare it as a dependency,
	// in resolved order. It is computed per resolution and never stored on services.
	DependedBy map[string][]string
}

// OrderedServices lists the document's services in document order.
func OrderedServices(doc *compose.Document) []NamedService {
	out := make([]NamedService, 0, doc.Services.Len())
	doc.Services.Each(func(name string, svc *compose.Service) {
		out = append(out, NamedService{Name: name, Service: svc})
	})
	return out
}

// visit states for the depth-first traversal.
const (
	unvisited = iota
	inProgress
	done
)

// TopologicalSort orders services so every dependency precedes its dependents.
//
// The function is a depth-first traversal with three colors:
//  1. Services are visited in input order
//  2. Dependencies are visited in declared order before the service itself
//  3. Reaching an in-progress service means a cycle; CycleError names it
//  4. A dependency missing from the input is skipped
//
// Inputs without dependencies come back in input order. A shared dependency
// appears once, before the first dependent that reaches it. Edge conditions
// do not affect the order.
//
// Example:
//
//	// Services: web → api → db
//	res, _ := TopologicalSort([]NamedService{
//	    {Name: "web", Service: &compose.Service{DependsOn: deps("api")}},
//	    {Name: "api", Service: &compose.Service{DependsOn: deps("db")}},
//	    {Name: "db", Service: &compose.Service{}},
//	})
//	// res.Order: [db, api, web]
func TopologicalSort(services []NamedService) (*Resolution, error) {
	byName := make(map[string]NamedService, len(services))
	for _, s := range services {
		byName[s.Name] = s
	}

	state := make(map[string]int, len(services))
	order := make([]NamedService, 0, len(services))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case inProgress:
			return &CycleError{Service: name}
		case done:
			return nil
		}

		state[name] = inProgress
		for _, dep := range dependencyNames(byName[name].Service) {
			if _, ok := byName[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, byName[name])
		return nil
	}

	for _, s := range services {
		if err := visit(s.Name); err != nil {
			return nil, err
		}
	}

	return &Resolution{Order: order, DependedBy: dependedBy(order, byName)}, nil
}

func dependencyNames(svc *compose.Service) []string {
	if svc == nil {
		return nil
	}
	return svc.DependsOn.Keys()
}

func dependedBy(order []NamedService, byName map[string]NamedService) map[string][]string {
	out := make(map[string][]string)
	for _, s := range order {
		for _, dep := range dependencyNames(s.Service) {
			if _, ok := byName[dep]; ok {
				out[dep] = append(out[dep], s.Name)
			}
		}
	}
	return out
}

// Names returns the resolved service names in order.
func (r *Resolution) Names() []string {
	return lo.Map(r.Order, func(s NamedService, _ int) string { return s.Name })
}

// Reverse returns the resolved order reversed, dependents first.
func (r *Resolution) Reverse() []NamedService {
	return lo.Reverse(append([]NamedService(nil), r.Order...))
}

// SelectWithDependencies keeps the named services and their transitive
// dependencies, in resolved order. An empty selection keeps everything.
// Names not present in the resolution are ignored.
func (r *Resolution) SelectWithDependencies(names []string) []NamedService {
	if len(names) == 0 {
		return r.Order
	}

	byName := lo.SliceToMap(r.Order, func(s NamedService) (string, NamedService) { return s.Name, s })
	keep := make(map[string]bool)
	var mark func(name string)
	mark = func(name string) {
		s, ok := byName[name]
		if !ok || keep[name] {
			return
		}
		keep[name] = true
		for _, dep := range dependencyNames(s.Service) {
			mark(dep)
		}
	}
	for _, name := range names {
		mark(name)
	}

	return lo.Filter(r.Order, func(s NamedService, _ int) bool { return keep[s.Name] })
}

// Select keeps only the named services, in resolved order. An empty
// selection keeps everything.
func Select(order []NamedService, names []string) []NamedService {
	if len(names) == 0 {
		return order
	}
	return lo.Filter(order, func(s NamedService, _ int) bool { return lo.Contains(names, s.Name) })
}
