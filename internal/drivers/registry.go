package drivers

import "fmt"

// Registry holds the installed drivers. Registration happens during startup
// wiring; Match is called from the transport's enumeration loop afterwards.
type Registry struct {
	drivers []Driver
	byName  map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Driver),
	}
}

func (r *Registry) Register(d Driver) error {
	if _, ok := r.byName[d.Name()]; ok {
		return fmt.Errorf("driver already registered: %s", d.Name())
	}
	r.byName[d.Name()] = d
	r.drivers = append(r.drivers, d)
	return nil
}

// Match returns the first driver claiming the advertised device.
func (r *Registry) Match(name string, vendorID, productID uint16) (Driver, bool) {
	for _, d := range r.drivers {
		if d.Matches(name, vendorID, productID) {
			return d, true
		}
	}
	return nil, false
}

func (r *Registry) Drivers() []Driver {
	return r.drivers
}
