package repositories

import (
	"errors"
	"fmt"
	"os"
	"time"
	"tow-dispatch-service/internal/domain"

	"gopkg.in/yaml.v3"
)

type EdgeSeed struct {
	A      int `yaml:"a"`
	B      int `yaml:"b"`
	Weight int `yaml:"weight"`
}

type AreaSeed struct {
	ID    int        `yaml:"id"`
	Nodes []int      `yaml:"nodes"`
	Edges []EdgeSeed `yaml:"edges"`
}

type VehicleSeed struct {
	ID     int    `yaml:"id"`
	Node   int    `yaml:"node"`
	Status string `yaml:"status"`
}

type OrderSeed struct {
	ID       int     `yaml:"id"`
	ClientID int     `yaml:"client_id"`
	Node     int     `yaml:"node"`
	CarValue float64 `yaml:"car_value"`
}

// Fixture describes areas, a fleet and pending orders for seeding a store.
type Fixture struct {
	Areas    []AreaSeed    `yaml:"areas"`
	Vehicles []VehicleSeed `yaml:"vehicles"`
	Orders   []OrderSeed   `yaml:"orders"`
}

// Read and validate a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load fixture: read %q: %w", path, err)
	}
	return ParseFixture(b)
}

func ParseFixture(b []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// Validate checks ids, edge endpoints and statuses.
func (f *Fixture) Validate() error {
	if f == nil {
		return errors.New("fixture is nil")
	}

	nodeArea := map[int]int{}
	for i, a := range f.Areas {
		if a.ID <= 0 {
			return fmt.Errorf("area #%d: invalid id %d: %w", i+1, a.ID, domain.ErrInvalidInput)
		}
		for _, n := range a.Nodes {
			if n <= 0 {
				return fmt.Errorf("area %d: invalid node id %d: %w", a.ID, n, domain.ErrInvalidInput)
			}
			if prev, dup := nodeArea[n]; dup {
				return fmt.Errorf("node %d listed in areas %d and %d: %w", n, prev, a.ID, domain.ErrInvalidInput)
			}
			nodeArea[n] = a.ID
		}
	}

	seen := map[domain.EdgeKey]struct{}{}
	for _, a := range f.Areas {
		for _, e := range a.Edges {
			edge := domain.Edge{NodeA: e.A, NodeB: e.B, Weight: e.Weight}
			if err := edge.Validate(); err != nil {
				return fmt.Errorf("area %d edge (%d,%d): %w", a.ID, e.A, e.B, err)
			}
			if nodeArea[e.A] != a.ID || nodeArea[e.B] != a.ID {
				return fmt.Errorf("area %d edge (%d,%d): endpoint outside area: %w", a.ID, e.A, e.B, domain.ErrInvalidInput)
			}
			if _, dup := seen[edge.Key()]; dup {
				return fmt.Errorf("area %d edge (%d,%d): duplicate edge: %w", a.ID, e.A, e.B, domain.ErrInvalidInput)
			}
			seen[edge.Key()] = struct{}{}
		}
	}

	for _, v := range f.Vehicles {
		if v.ID <= 0 {
			return fmt.Errorf("vehicle: invalid id %d: %w", v.ID, domain.ErrInvalidInput)
		}
		if _, ok := nodeArea[v.Node]; !ok {
			return fmt.Errorf("vehicle %d: node %d: %w", v.ID, v.Node, domain.ErrNodeNotFound)
		}
		if _, err := domain.ParseVehicleStatus(v.Status); err != nil {
			return fmt.Errorf("vehicle %d: %w", v.ID, err)
		}
	}

	for _, o := range f.Orders {
		if o.ID <= 0 {
			return fmt.Errorf("order: invalid id %d: %w", o.ID, domain.ErrInvalidInput)
		}
		if _, ok := nodeArea[o.Node]; !ok {
			return fmt.Errorf("order %d: node %d: %w", o.ID, o.Node, domain.ErrNodeNotFound)
		}
	}

	return nil
}

func (f *Fixture) NodeRows() []domain.Node {
	var out []domain.Node
	for _, a := range f.Areas {
		for _, n := range a.Nodes {
			out = append(out, domain.Node{ID: n, AreaID: a.ID})
		}
	}
	return out
}

func (f *Fixture) EdgeRows() []domain.Edge {
	var out []domain.Edge
	for _, a := range f.Areas {
		for _, e := range a.Edges {
			out = append(out, domain.Edge{NodeA: e.A, NodeB: e.B, Weight: e.Weight})
		}
	}
	return out
}

func (f *Fixture) VehicleRows() []domain.Vehicle {
	out := make([]domain.Vehicle, 0, len(f.Vehicles))
	for _, v := range f.Vehicles {
		out = append(out, domain.Vehicle{ID: v.ID, NodeID: v.Node, Status: domain.VehicleStatus(v.Status)})
	}
	return out
}

// OrderRows returns the fixture orders as pending orders placed at now.
func (f *Fixture) OrderRows(now time.Time) []domain.Order {
	out := make([]domain.Order, 0, len(f.Orders))
	for _, o := range f.Orders {
		out = append(out, domain.Order{
			ID:        o.ID,
			ClientID:  o.ClientID,
			NodeID:    o.Node,
			Status:    domain.OrderPending,
			CarValue:  o.CarValue,
			OrderTime: now.UTC(),
		})
	}
	return out
}
