package orchard

import (
	"errors"
	"sync"
	"testing"
)

func TestReferenceSurvivesRelocation(t *testing.T) {
	w := Factory.NewWorld()
	first, _ := w.CreateEntity("first", true, Position{X: 1})
	tracked, _ := w.CreateEntity("tracked", true, Position{X: 2})
	w.CreateEntity("last", true, Position{X: 3})

	ref, ok := w.EntityReference(tracked)
	if !ok {
		t.Fatalf("EntityReference(%d) not found", tracked)
	}

	steps := []struct {
		name   string
		mutate func() error
		want   Position
	}{
		{
			name: "Swap remove moves a row into the hole",
			mutate: func() error {
				_, err := w.RemoveEntity(first)
				return err
			},
			want: Position{X: 2},
		},
		{
			name: "Archetype growth",
			mutate: func() error {
				for i := range 100 {
					if _, err := w.CreateEntity("", true, Position{X: float64(10 + i)}); err != nil {
						return err
					}
				}
				return nil
			},
			want: Position{X: 2},
		},
		{
			name: "Archetype move",
			mutate: func() error {
				return w.AddComponents(tracked, Velocity{X: 5})
			},
			want: Position{X: 2},
		},
		{
			name: "New archetypes shift the collection",
			mutate: func() error {
				_, err := w.CreateEntity("", true, Health{})
				if err != nil {
					return err
				}
				_, err = w.CreateEntity("", true, Health{}, Health{}, Position{}, Velocity{})
				return err
			},
			want: Position{X: 2},
		},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if err := step.mutate(); err != nil {
				t.Fatal(err)
			}
			g, err := ref.Read()
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			defer g.Release()
			if g.ID() != tracked || g.Name() != "tracked" {
				t.Errorf("reference resolved to %d %q", g.ID(), g.Name())
			}
			pos, err := posComp.GetFromGuard(g)
			if err != nil {
				t.Fatal(err)
			}
			if pos != step.want {
				t.Errorf("Position = %+v, want %+v", pos, step.want)
			}
		})
	}
	checkLocations(t, w)
}

func TestReferenceIdentity(t *testing.T) {
	w := Factory.NewWorld()
	id, _ := w.CreateEntity("", true, Position{})

	a, _ := w.EntityReference(id)
	b, _ := w.EntityReference(id)
	if a.cell != b.cell {
		t.Errorf("references to one entity do not share their location")
	}
	if _, ok := w.EntityReference(id + 1); ok {
		t.Errorf("reference to missing entity resolved")
	}
}

func TestDeletedReference(t *testing.T) {
	w := Factory.NewWorld()
	id, _ := w.CreateEntity("", true, Position{}, Health{})
	ref, _ := w.EntityReference(id)
	comp := ref.Component(healthComp, 0)

	w.RemoveEntity(id)
	if ref.Alive() {
		t.Errorf("reference alive after removal")
	}

	var deleted DeletedReferenceError
	if _, err := ref.Read(); !errors.As(err, &deleted) || deleted.ID != id {
		t.Errorf("Read() error = %v, want DeletedReferenceError{%d}", err, id)
	}
	if _, err := ref.Write(); !errors.As(err, &deleted) {
		t.Errorf("Write() error = %v", err)
	}
	if _, err := comp.Read(); !errors.As(err, &deleted) {
		t.Errorf("component Read() error = %v", err)
	}
	if w.Locked() {
		t.Errorf("failed acquisition leaked a view")
	}

	// ids are never reused, so later creations cannot revive it
	w.CreateEntity("", true, Position{})
	if ref.Alive() {
		t.Errorf("reference revived by an unrelated creation")
	}
}

func TestEntityWriteGuard(t *testing.T) {
	w := Factory.NewWorld()
	id, _ := w.CreateEntity("before", true, Position{X: 1}, Velocity{})
	ref, _ := w.EntityReference(id)

	g, err := ref.Write()
	if err != nil {
		t.Fatal(err)
	}
	pos, err := posComp.GetFromWriteGuard(g)
	if err != nil {
		t.Fatal(err)
	}
	pos.X = 42
	if err := g.Set(velComp, 0, Velocity{Y: 3}); err != nil {
		t.Fatal(err)
	}
	var mismatch TypeMismatchError
	if err := g.Set(velComp, 0, Position{}); !errors.As(err, &mismatch) {
		t.Errorf("Set with wrong type error = %v, want TypeMismatchError", err)
	}
	g.SetName("after")
	g.SetEnabled(false)

	// structural changes are refused while the guard is held
	var locked LockedStorageError
	if _, err := w.RemoveEntity(id); !errors.As(err, &locked) {
		t.Errorf("RemoveEntity under guard error = %v", err)
	}
	g.Release()
	g.Release()

	r, err := ref.Read()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	if r.Name() != "after" || r.Enabled() {
		t.Errorf("name=%q enabled=%v after guard", r.Name(), r.Enabled())
	}
	got, _ := posComp.GetFromGuard(r)
	vel, _ := velComp.GetFromGuard(r)
	if got.X != 42 || vel.Y != 3 {
		t.Errorf("writes lost: %+v %+v", got, vel)
	}
}

func TestComponentReference(t *testing.T) {
	w := Factory.NewWorld()
	id, _ := w.CreateEntity("", true, Position{}, Health{Current: 1}, Health{Current: 2})
	ref, _ := w.EntityReference(id)

	tests := []struct {
		name    string
		index   int
		want    any
		wantErr bool
	}{
		{"First slot of first type", 0, Position{}, false},
		{"Second slot of repeated type", 2, Health{Current: 2}, false},
		{"Out of range", 3, nil, true},
		{"Negative", -1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Health registers after Position, so it flattens second
			comp, err := ref.ComponentAt(tt.index)
			if tt.wantErr {
				var idxErr ComponentIndexError
				if !errors.As(err, &idxErr) {
					t.Errorf("ComponentAt(%d) error = %v, want ComponentIndexError", tt.index, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			g, err := comp.Read()
			if err != nil {
				t.Fatal(err)
			}
			defer g.Release()
			if g.Value() != tt.want {
				t.Errorf("Value() = %v, want %v", g.Value(), tt.want)
			}
		})
	}

	second := ref.Component(healthComp, 1)
	g, err := second.Write()
	if err != nil {
		t.Fatal(err)
	}
	health, err := healthComp.GetFromComponentGuard(g)
	if err != nil {
		t.Fatal(err)
	}
	health.Max = 7
	if _, err := posComp.GetFromComponentGuard(g); err == nil {
		t.Errorf("typed access with the wrong component succeeded")
	}
	g.Release()

	// the slot disappears once the entity no longer holds two Health
	comps, _ := w.Components(id)
	if comps[2] != any(Health{Current: 2, Max: 7}) {
		t.Errorf("component write lost: %v", comps)
	}
	if err := w.RemoveComponent(id, 2); err != nil {
		t.Fatal(err)
	}
	var notFound ComponentNotFoundError
	if _, err := second.Read(); !errors.As(err, &notFound) {
		t.Errorf("Read() of vanished slot error = %v, want ComponentNotFoundError", err)
	}
	if w.Locked() {
		t.Errorf("failed component acquisition leaked a view")
	}
}

// TestGuardExclusion checks through the row lock counters that a write
// guard never coexists with another guard on the same row
func TestGuardExclusion(t *testing.T) {
	w := Factory.NewWorld()
	id, _ := w.CreateEntity("", true, Position{})
	ref, _ := w.EntityReference(id)

	var wg sync.WaitGroup
	var mu sync.Mutex
	violations := 0
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if i%4 == 0 {
					g, err := ref.Write()
					if err != nil {
						t.Error(err)
						return
					}
					readers, writers := g.lock.holders()
					pos, _ := posComp.GetFromWriteGuard(g)
					pos.X++
					pos.Y++
					if readers != 0 || writers != 1 {
						mu.Lock()
						violations++
						mu.Unlock()
					}
					g.Release()
					continue
				}
				g, err := ref.Read()
				if err != nil {
					t.Error(err)
					return
				}
				_, writers := g.lock.holders()
				pos, _ := posComp.GetFromGuard(g)
				if writers != 0 || pos.X != pos.Y {
					mu.Lock()
					violations++
					mu.Unlock()
				}
				g.Release()
			}
		}()
	}
	wg.Wait()
	if violations != 0 {
		t.Errorf("%d overlapping guards or torn reads observed", violations)
	}

	g, _ := ref.Read()
	defer g.Release()
	pos, _ := posComp.GetFromGuard(g)
	if pos.X != 4*50 {
		t.Errorf("Position.X = %v, want %v", pos.X, 4*50)
	}
}
