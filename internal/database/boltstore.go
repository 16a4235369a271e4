// internal/database/boltstore.go - BoltDB implementation of Store
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	HostsBucket         = []byte("hosts")
	HeartbeatsBucket    = []byte("heartbeats")
	ServicesBucket      = []byte("services")
	ServiceChecksBucket = []byte("service_checks")
	AlertsBucket        = []byte("alerts")
)

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{HostsBucket, HeartbeatsBucket, ServicesBucket, ServiceChecksBucket, AlertsBucket}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) GetHosts(ctx context.Context) ([]Host, error) {
	var hosts []Host

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		return b.ForEach(func(k, v []byte) error {
			var host Host
			if err := json.Unmarshal(v, &host); err != nil {
				return fmt.Errorf("failed to unmarshal host %s: %w", k, err)
			}
			hosts = append(hosts, host)
			return nil
		})
	})

	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts, err
}

func (s *BoltStore) GetHost(ctx context.Context, id string) (*Host, error) {
	var host Host

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrHostNotFound
		}
		return json.Unmarshal(v, &host)
	})

	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (s *BoltStore) CreateHost(ctx context.Context, host *Host) error {
	if host.ID == "" {
		host.ID = uuid.New().String()
	}
	host.CreatedAt = time.Now()
	host.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)

		data, err := json.Marshal(host)
		if err != nil {
			return fmt.Errorf("failed to marshal host: %w", err)
		}

		return b.Put([]byte(host.ID), data)
	})
}

func (s *BoltStore) UpdateHost(ctx context.Context, host *Host) error {
	host.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)

		if b.Get([]byte(host.ID)) == nil {
			return ErrHostNotFound
		}

		data, err := json.Marshal(host)
		if err != nil {
			return fmt.Errorf("failed to marshal host: %w", err)
		}

		return b.Put([]byte(host.ID), data)
	})
}

func (s *BoltStore) UpdateHostStatus(ctx context.Context, id string, status HostStatus, lastSeen *time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrHostNotFound
		}

		var host Host
		if err := json.Unmarshal(v, &host); err != nil {
			return fmt.Errorf("failed to unmarshal host: %w", err)
		}

		host.Status = status
		if lastSeen != nil {
			host.LastSeen = lastSeen
		}
		host.UpdatedAt = time.Now()

		data, err := json.Marshal(&host)
		if err != nil {
			return fmt.Errorf("failed to marshal host: %w", err)
		}

		return b.Put([]byte(id), data)
	})
}

func (s *BoltStore) DeleteHost(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HostsBucket)
		if b.Get([]byte(id)) == nil {
			return ErrHostNotFound
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}

		// Cascade heartbeats. Collect keys first; deleting through the
		// bucket while a cursor iterates it invalidates the cursor.
		hb := tx.Bucket(HeartbeatsBucket)
		c := hb.Cursor()
		prefix := []byte(id + ":")
		var staleHBs [][]byte
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			staleHBs = append(staleHBs, append([]byte(nil), k...))
		}
		for _, k := range staleHBs {
			if err := hb.Delete(k); err != nil {
				return err
			}
		}

		// Cascade alerts
		ab := tx.Bucket(AlertsBucket)
		var stale [][]byte
		err := ab.ForEach(func(k, v []byte) error {
			var alert Alert
			if err := json.Unmarshal(v, &alert); err != nil {
				return nil // Skip malformed entries
			}
			if alert.HostID == id {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := ab.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) RecordHeartbeat(ctx context.Context, hb *Heartbeat) error {
	if hb.ID == "" {
		hb.ID = uuid.New().String()
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HeartbeatsBucket)

		data, err := json.Marshal(hb)
		if err != nil {
			return fmt.Errorf("failed to marshal heartbeat: %w", err)
		}

		key := fmt.Sprintf("%s:%020d:%s", hb.HostID, hb.Timestamp.UnixNano(), hb.ID)
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) GetHeartbeats(ctx context.Context, hostID string, limit int) ([]Heartbeat, error) {
	var heartbeats []Heartbeat

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(HeartbeatsBucket)
		c := b.Cursor()

		prefix := hostID + ":"
		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var hb Heartbeat
			if err := json.Unmarshal(v, &hb); err != nil {
				continue
			}
			heartbeats = append(heartbeats, hb)
		}
		return nil
	})

	// Keys are time-ordered; newest first for callers.
	sort.Slice(heartbeats, func(i, j int) bool { return heartbeats[i].Timestamp.After(heartbeats[j].Timestamp) })
	if limit > 0 && len(heartbeats) > limit {
		heartbeats = heartbeats[:limit]
	}
	return heartbeats, err
}

func (s *BoltStore) GetServices(ctx context.Context, enabledOnly bool) ([]Service, error) {
	var services []Service

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)
		return b.ForEach(func(k, v []byte) error {
			var svc Service
			if err := json.Unmarshal(v, &svc); err != nil {
				return fmt.Errorf("failed to unmarshal service %s: %w", k, err)
			}
			if enabledOnly && !svc.Enabled {
				return nil
			}
			services = append(services, svc)
			return nil
		})
	})

	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, err
}

func (s *BoltStore) GetService(ctx context.Context, id string) (*Service, error) {
	var svc Service

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrServiceNotFound
		}
		return json.Unmarshal(v, &svc)
	})

	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *BoltStore) CreateService(ctx context.Context, svc *Service) error {
	if svc.ID == "" {
		svc.ID = uuid.New().String()
	}
	svc.CreatedAt = time.Now()
	svc.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)

		data, err := json.Marshal(svc)
		if err != nil {
			return fmt.Errorf("failed to marshal service: %w", err)
		}

		return b.Put([]byte(svc.ID), data)
	})
}

func (s *BoltStore) UpdateService(ctx context.Context, svc *Service) error {
	svc.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)

		if b.Get([]byte(svc.ID)) == nil {
			return ErrServiceNotFound
		}

		data, err := json.Marshal(svc)
		if err != nil {
			return fmt.Errorf("failed to marshal service: %w", err)
		}

		return b.Put([]byte(svc.ID), data)
	})
}

func (s *BoltStore) UpdateServiceHealth(ctx context.Context, id string, status ServiceStatus, consecutiveFailures int, lastError string, checkedAt time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrServiceNotFound
		}

		var svc Service
		if err := json.Unmarshal(v, &svc); err != nil {
			return fmt.Errorf("failed to unmarshal service: %w", err)
		}

		svc.Status = status
		svc.ConsecutiveFailures = consecutiveFailures
		svc.LastError = lastError
		svc.LastChecked = &checkedAt
		svc.UpdatedAt = time.Now()

		data, err := json.Marshal(&svc)
		if err != nil {
			return fmt.Errorf("failed to marshal service: %w", err)
		}

		return b.Put([]byte(id), data)
	})
}

func (s *BoltStore) DeleteService(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServicesBucket)
		if b.Get([]byte(id)) == nil {
			return ErrServiceNotFound
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}

		// Cascade recorded checks, collecting keys before deleting so
		// the cursor never iterates a bucket being mutated.
		cb := tx.Bucket(ServiceChecksBucket)
		c := cb.Cursor()
		prefix := []byte(id + ":")
		var stale [][]byte
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := cb.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) RecordServiceCheck(ctx context.Context, check *ServiceCheck) error {
	if check.ID == "" {
		check.ID = uuid.New().String()
	}
	if check.Timestamp.IsZero() {
		check.Timestamp = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServiceChecksBucket)

		data, err := json.Marshal(check)
		if err != nil {
			return fmt.Errorf("failed to marshal service check: %w", err)
		}

		key := fmt.Sprintf("%s:%020d:%s", check.ServiceID, check.Timestamp.UnixNano(), check.ID)
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) GetServiceChecks(ctx context.Context, serviceID string, limit int) ([]ServiceCheck, error) {
	var checks []ServiceCheck

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ServiceChecksBucket)
		c := b.Cursor()

		prefix := serviceID + ":"
		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			var check ServiceCheck
			if err := json.Unmarshal(v, &check); err != nil {
				continue
			}
			checks = append(checks, check)
		}
		return nil
	})

	sort.Slice(checks, func(i, j int) bool { return checks[i].Timestamp.After(checks[j].Timestamp) })
	if limit > 0 && len(checks) > limit {
		checks = checks[:limit]
	}
	return checks, err
}

func (s *BoltStore) SaveAlert(ctx context.Context, alert *Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)

		data, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}

		return b.Put([]byte(alert.ID), data)
	})
}

func (s *BoltStore) GetAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error) {
	var alerts []Alert

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)
		return b.ForEach(func(k, v []byte) error {
			var alert Alert
			if err := json.Unmarshal(v, &alert); err != nil {
				return nil // Skip malformed entries
			}

			if filters.HostID != "" && alert.HostID != filters.HostID {
				return nil
			}
			if filters.ServiceID != "" && alert.ServiceID != filters.ServiceID {
				return nil
			}
			if filters.Kind != "" && alert.Kind != filters.Kind {
				return nil
			}
			if filters.Severity != "" && alert.Severity != filters.Severity {
				return nil
			}
			if filters.Acknowledged != nil && alert.Acknowledged != *filters.Acknowledged {
				return nil
			}
			if filters.Since != nil && alert.CreatedAt.Before(*filters.Since) {
				return nil
			}

			alerts = append(alerts, alert)
			return nil
		})
	})

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	if filters.Limit > 0 && len(alerts) > filters.Limit {
		alerts = alerts[:filters.Limit]
	}
	return alerts, err
}

func (s *BoltStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	var alert Alert

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrAlertNotFound
		}
		return json.Unmarshal(v, &alert)
	})

	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (s *BoltStore) DeleteAlert(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)
		if b.Get([]byte(id)) == nil {
			return ErrAlertNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrAlertNotFound
		}

		var alert Alert
		if err := json.Unmarshal(v, &alert); err != nil {
			return fmt.Errorf("failed to unmarshal alert: %w", err)
		}

		alert.Acknowledged = true
		alert.AcknowledgedAt = &at

		data, err := json.Marshal(&alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}

		return b.Put([]byte(id), data)
	})
}

func (s *BoltStore) FindRecentAlert(ctx context.Context, hostID, serviceID string, kind AlertKind, message string, since time.Time) (*Alert, error) {
	var found *Alert

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(AlertsBucket)
		return b.ForEach(func(k, v []byte) error {
			var alert Alert
			if err := json.Unmarshal(v, &alert); err != nil {
				return nil // Skip malformed entries
			}

			if alert.HostID != hostID || alert.ServiceID != serviceID {
				return nil
			}
			if alert.Kind != kind || alert.Message != message {
				return nil
			}
			if alert.Acknowledged || alert.CreatedAt.Before(since) {
				return nil
			}

			if found == nil || alert.CreatedAt.After(found.CreatedAt) {
				a := alert
				found = &a
			}
			return nil
		})
	})

	return found, err
}

func (s *BoltStore) DeleteHeartbeatsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteTimestampedBefore(HeartbeatsBucket, cutoff, func(v []byte) (time.Time, bool) {
		var hb Heartbeat
		if err := json.Unmarshal(v, &hb); err != nil {
			return time.Time{}, false
		}
		return hb.Timestamp, true
	})
}

func (s *BoltStore) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteTimestampedBefore(AlertsBucket, cutoff, func(v []byte) (time.Time, bool) {
		var alert Alert
		if err := json.Unmarshal(v, &alert); err != nil {
			return time.Time{}, false
		}
		return alert.CreatedAt, true
	})
}

func (s *BoltStore) DeleteServiceChecksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteTimestampedBefore(ServiceChecksBucket, cutoff, func(v []byte) (time.Time, bool) {
		var check ServiceCheck
		if err := json.Unmarshal(v, &check); err != nil {
			return time.Time{}, false
		}
		return check.Timestamp, true
	})
}

func (s *BoltStore) deleteTimestampedBefore(bucket []byte, cutoff time.Time, at func([]byte) (time.Time, bool)) (int, error) {
	deleted := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			ts, ok := at(v)
			if ok && ts.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})

	return deleted, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
