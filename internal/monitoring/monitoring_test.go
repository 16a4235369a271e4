package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"watchtower/internal/database"
)

// memStore is an in-memory database.Store for exercising the engine
// pieces without bolt.
type memStore struct {
	mu         sync.Mutex
	hosts      map[string]*database.Host
	services   map[string]*database.Service
	heartbeats []database.Heartbeat
	checks     []database.ServiceCheck
	alerts     []*database.Alert

	nextID int

	failHostStatusUpdate    bool
	failServiceHealthUpdate bool
}

func newMemStore() *memStore {
	return &memStore{
		hosts:    make(map[string]*database.Host),
		services: make(map[string]*database.Service),
	}
}

func (m *memStore) genID() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

func (m *memStore) GetHosts(ctx context.Context) ([]database.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Host, 0, len(m.hosts))
	for _, h := range m.hosts {
		out = append(out, *h)
	}
	return out, nil
}

func (m *memStore) GetHost(ctx context.Context, id string) (*database.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hosts[id]
	if !ok {
		return nil, database.ErrHostNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *memStore) CreateHost(ctx context.Context, host *database.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if host.ID == "" {
		host.ID = m.genID()
	}
	cp := *host
	m.hosts[host.ID] = &cp
	return nil
}

func (m *memStore) UpdateHost(ctx context.Context, host *database.Host) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hosts[host.ID]; !ok {
		return database.ErrHostNotFound
	}
	cp := *host
	m.hosts[host.ID] = &cp
	return nil
}

func (m *memStore) UpdateHostStatus(ctx context.Context, id string, status database.HostStatus, lastSeen *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHostStatusUpdate {
		return fmt.Errorf("status update failed")
	}
	h, ok := m.hosts[id]
	if !ok {
		return database.ErrHostNotFound
	}
	h.Status = status
	if lastSeen != nil {
		t := *lastSeen
		h.LastSeen = &t
	}
	return nil
}

func (m *memStore) DeleteHost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hosts[id]; !ok {
		return database.ErrHostNotFound
	}
	delete(m.hosts, id)
	return nil
}

func (m *memStore) RecordHeartbeat(ctx context.Context, hb *database.Heartbeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hb.ID == "" {
		hb.ID = m.genID()
	}
	m.heartbeats = append(m.heartbeats, *hb)
	return nil
}

func (m *memStore) GetHeartbeats(ctx context.Context, hostID string, limit int) ([]database.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Heartbeat
	for _, hb := range m.heartbeats {
		if hb.HostID == hostID {
			out = append(out, hb)
		}
	}
	return out, nil
}

func (m *memStore) GetServices(ctx context.Context, enabledOnly bool) ([]database.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Service, 0, len(m.services))
	for _, s := range m.services {
		if enabledOnly && !s.Enabled {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) GetService(ctx context.Context, id string) (*database.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return nil, database.ErrServiceNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) CreateService(ctx context.Context, svc *database.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if svc.ID == "" {
		svc.ID = m.genID()
	}
	cp := *svc
	m.services[svc.ID] = &cp
	return nil
}

func (m *memStore) UpdateService(ctx context.Context, svc *database.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[svc.ID]; !ok {
		return database.ErrServiceNotFound
	}
	cp := *svc
	m.services[svc.ID] = &cp
	return nil
}

func (m *memStore) UpdateServiceHealth(ctx context.Context, id string, status database.ServiceStatus, consecutiveFailures int, lastError string, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failServiceHealthUpdate {
		return fmt.Errorf("health update failed")
	}
	s, ok := m.services[id]
	if !ok {
		return database.ErrServiceNotFound
	}
	s.Status = status
	s.ConsecutiveFailures = consecutiveFailures
	s.LastError = lastError
	t := checkedAt
	s.LastChecked = &t
	return nil
}

func (m *memStore) DeleteService(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return database.ErrServiceNotFound
	}
	delete(m.services, id)
	return nil
}

func (m *memStore) RecordServiceCheck(ctx context.Context, check *database.ServiceCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if check.ID == "" {
		check.ID = m.genID()
	}
	m.checks = append(m.checks, *check)
	return nil
}

func (m *memStore) GetServiceChecks(ctx context.Context, serviceID string, limit int) ([]database.ServiceCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.ServiceCheck
	for _, c := range m.checks {
		if c.ServiceID == serviceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) SaveAlert(ctx context.Context, alert *database.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.ID == "" {
		alert.ID = m.genID()
	}
	cp := *alert
	m.alerts = append(m.alerts, &cp)
	return nil
}

func (m *memStore) GetAlerts(ctx context.Context, filters database.AlertFilters) ([]database.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Alert
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) GetAlert(ctx context.Context, id string) (*database.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, database.ErrAlertNotFound
}

func (m *memStore) DeleteAlert(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.alerts {
		if a.ID == id {
			m.alerts = append(m.alerts[:i], m.alerts[i+1:]...)
			return nil
		}
	}
	return database.ErrAlertNotFound
}

func (m *memStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			a.Acknowledged = true
			t := at
			a.AcknowledgedAt = &t
			return nil
		}
	}
	return database.ErrAlertNotFound
}

func (m *memStore) FindRecentAlert(ctx context.Context, hostID, serviceID string, kind database.AlertKind, message string, since time.Time) (*database.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *database.Alert
	for _, a := range m.alerts {
		if a.HostID != hostID || a.ServiceID != serviceID || a.Kind != kind || a.Message != message {
			continue
		}
		if a.Acknowledged || a.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || a.CreatedAt.After(newest.CreatedAt) {
			newest = a
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (m *memStore) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.heartbeats[:0]
	removed := 0
	for _, hb := range m.heartbeats {
		if hb.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, hb)
	}
	m.heartbeats = kept
	return removed, nil
}

func (m *memStore) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.alerts[:0]
	removed := 0
	for _, a := range m.alerts {
		if a.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return removed, nil
}

func (m *memStore) DeleteServiceChecksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.checks[:0]
	removed := 0
	for _, c := range m.checks {
		if c.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.checks = kept
	return removed, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) alertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func (m *memStore) lastAlert() *database.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.alerts) == 0 {
		return nil
	}
	cp := *m.alerts[len(m.alerts)-1]
	return &cp
}

// recordingNotifier captures everything it is asked to deliver.
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*database.Alert
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, alert *database.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}
