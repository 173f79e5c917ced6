package station

import (
	"errors"
	"fmt"
	"sort"

	"mu-scheduler/internal/logging"
	"mu-scheduler/internal/wifi"

	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("station not found")

// Station is one associated station as seen by one registry list. Each list
// keeps its own entry so credits are tracked per list.
type Station struct {
	AID     uint16
	Address wifi.Address
	Credits float64
}

// List is an ordered set of stations. Order is insertion order until the
// credit tracker re-sorts it.
type List struct {
	name     string
	stations []*Station
}

func newList(name string) *List {
	return &List{name: name}
}

func (l *List) Name() string {
	return l.name
}

func (l *List) Len() int {
	return len(l.stations)
}

// Stations returns the entries in list order. The slice is a copy; the
// entries are shared with the list.
func (l *List) Stations() []*Station {
	out := make([]*Station, len(l.stations))
	copy(out, l.stations)
	return out
}

func (l *List) Find(addr wifi.Address) (*Station, bool) {
	for _, s := range l.stations {
		if s.Address == addr {
			return s, true
		}
	}
	return nil, false
}

func (l *List) Contains(addr wifi.Address) bool {
	_, ok := l.Find(addr)
	return ok
}

func (l *List) add(aid uint16, addr wifi.Address) bool {
	if l.Contains(addr) {
		return false
	}
	l.stations = append(l.stations, &Station{AID: aid, Address: addr})
	return true
}

func (l *List) remove(addr wifi.Address) bool {
	for i, s := range l.stations {
		if s.Address == addr {
			l.stations = append(l.stations[:i], l.stations[i+1:]...)
			return true
		}
	}
	return false
}

// SortByCredits orders the list by descending credits, keeping the current
// order among equal balances.
func (l *List) SortByCredits() {
	sort.SliceStable(l.stations, func(i, j int) bool {
		return l.stations[i].Credits > l.stations[j].Credits
	})
}

// Registry holds one list per access category for downlink and one list for
// uplink. It is owned by a single scheduler and is not safe for concurrent use.
type Registry struct {
	downlink map[wifi.AccessCategory]*List
	uplink   *List
	logger   logrus.FieldLogger
}

func NewRegistry(logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logging.GetSchedulerLogger()
	}
	r := &Registry{
		downlink: make(map[wifi.AccessCategory]*List, len(wifi.AccessCategories)),
		uplink:   newList("uplink"),
		logger:   logger,
	}
	for _, ac := range wifi.AccessCategories {
		r.downlink[ac] = newList(ac.String())
	}
	return r
}

func (r *Registry) Downlink(ac wifi.AccessCategory) *List {
	return r.downlink[ac]
}

func (r *Registry) Uplink() *List {
	return r.uplink
}

func (r *Registry) lists() []*List {
	out := make([]*List, 0, len(r.downlink)+1)
	for _, ac := range wifi.AccessCategories {
		out = append(out, r.downlink[ac])
	}
	return append(out, r.uplink)
}

// Add appends the station to every list it is not yet part of. It reports
// whether any list changed.
func (r *Registry) Add(aid uint16, addr wifi.Address) bool {
	added := false
	for _, l := range r.lists() {
		if l.add(aid, addr) {
			added = true
		}
	}
	if added {
		r.logger.WithFields(logrus.Fields{
			"aid":     aid,
			"address": addr.String(),
		}).Info("Station added to registry")
	}
	return added
}

// Remove drops the station from every list.
func (r *Registry) Remove(addr wifi.Address) bool {
	removed := false
	for _, l := range r.lists() {
		if l.remove(addr) {
			removed = true
		}
	}
	if removed {
		r.logger.WithField("address", addr.String()).Info("Station removed from registry")
	}
	return removed
}

// Lookup returns the uplink entry for an AID.
func (r *Registry) Lookup(aid uint16) (*Station, error) {
	for _, s := range r.uplink.stations {
		if s.AID == aid {
			return s, nil
		}
	}
	return nil, fmt.Errorf("aid %d: %w", aid, ErrNotFound)
}

// Len returns the number of distinct registered stations.
func (r *Registry) Len() int {
	seen := make(map[wifi.Address]struct{})
	for _, l := range r.lists() {
		for _, s := range l.stations {
			seen[s.Address] = struct{}{}
		}
	}
	return len(seen)
}

// Balance is a snapshot of one entry's credits.
type Balance struct {
	List    string  `json:"list"`
	AID     uint16  `json:"aid"`
	Credits float64 `json:"credits"`
}

// Balances snapshots every entry of every list.
func (r *Registry) Balances() []Balance {
	var out []Balance
	for _, l := range r.lists() {
		for _, s := range l.stations {
			out = append(out, Balance{List: l.name, AID: s.AID, Credits: s.Credits})
		}
	}
	return out
}
