// internal/web/handlers.go - REST API handlers
package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"watchtower/internal/database"
	"watchtower/internal/monitoring"
)

// --- heartbeat ingestion ---

// handleHeartbeat ingests one contact from a host. The host token comes
// either from a bearer Authorization header or a token query parameter.
func (s *Server) handleHeartbeat(c *gin.Context) {
	hostID := c.Param("id")

	host, err := s.store.GetHost(c.Request.Context(), hostID)
	if err != nil {
		if errors.Is(err, database.ErrHostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "host not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !tokenMatches(c, host.Token) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	updated, hb, err := s.alerts.RecordContact(c.Request.Context(), host.ID, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"host":      updated.Name,
		"timestamp": hb.Timestamp.UTC().Format(time.RFC3339),
	})
}

func tokenMatches(c *gin.Context, token string) bool {
	if token == "" {
		return false
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == token
	}
	return c.Query("token") == token
}

// --- hosts ---

type hostRequest struct {
	Name                     string                 `json:"name" binding:"required"`
	CronExpression           string                 `json:"cron_expression"`
	ExpectedFrequencySeconds int                    `json:"expected_frequency_seconds"`
	GracePeriodSeconds       int                    `json:"grace_period_seconds"`
	ScheduleType             database.ScheduleType  `json:"schedule_type"`
	Window                   *database.WindowConfig `json:"window"`
}

// hostView decorates a host record with its live overdue verdict.
type hostView struct {
	database.Host
	Overdue bool `json:"overdue"`
}

func (s *Server) handleListHosts(c *gin.Context) {
	hosts, err := s.store.GetHosts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	views := make([]hostView, len(hosts))
	for i := range hosts {
		views[i] = hostView{Host: hosts[i], Overdue: s.liveness.IsOverdue(&hosts[i], now)}
	}
	c.JSON(http.StatusOK, gin.H{"hosts": views, "count": len(views)})
}

func (s *Server) handleCreateHost(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	host := &database.Host{
		ID:                       uuid.New().String(),
		Name:                     req.Name,
		Token:                    uuid.New().String(),
		CronExpression:           req.CronExpression,
		ExpectedFrequencySeconds: req.ExpectedFrequencySeconds,
		GracePeriodSeconds:       req.GracePeriodSeconds,
		ScheduleType:             req.ScheduleType,
		Window:                   req.Window,
		Status:                   database.HostUnknown,
	}
	if err := s.applyHostDefaults(host); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.CreateHost(c.Request.Context(), host); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logrus.WithField("host", host.Name).Info("Host created")
	c.JSON(http.StatusCreated, host)
}

// applyHostDefaults fills derived and defaulted fields. A cron
// expression, when present, is validated and drives the expected
// frequency; an explicit frequency wins over the estimate.
func (s *Server) applyHostDefaults(host *database.Host) error {
	if host.ScheduleType == "" {
		host.ScheduleType = database.ScheduleAlways
	}
	switch host.ScheduleType {
	case database.ScheduleAlways, database.ScheduleBusinessHours, database.ScheduleCustom:
	default:
		return errors.New("unknown schedule_type")
	}

	if host.CronExpression != "" {
		if err := monitoring.ValidateCron(host.CronExpression); err != nil {
			return err
		}
		if host.ExpectedFrequencySeconds <= 0 {
			freq, err := monitoring.EstimateFrequency(host.CronExpression, time.Now())
			if err != nil {
				logrus.WithError(err).WithField("cron", host.CronExpression).Warn("Frequency estimation fell back to default")
			}
			host.ExpectedFrequencySeconds = freq
		}
	}
	if host.ExpectedFrequencySeconds <= 0 {
		host.ExpectedFrequencySeconds = s.cfg.Monitoring.DefaultFrequencySeconds
	}
	if host.GracePeriodSeconds <= 0 {
		host.GracePeriodSeconds = s.cfg.Monitoring.DefaultGraceSeconds
	}
	return nil
}

func (s *Server) handleGetHost(c *gin.Context) {
	host, err := s.store.GetHost(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrHostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "host not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, host)
}

func (s *Server) handleUpdateHost(c *gin.Context) {
	host, err := s.store.GetHost(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrHostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "host not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	host.Name = req.Name
	host.CronExpression = req.CronExpression
	host.ExpectedFrequencySeconds = req.ExpectedFrequencySeconds
	host.GracePeriodSeconds = req.GracePeriodSeconds
	host.ScheduleType = req.ScheduleType
	host.Window = req.Window
	if err := s.applyHostDefaults(host); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.UpdateHost(c.Request.Context(), host); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, host)
}

func (s *Server) handleDeleteHost(c *gin.Context) {
	err := s.store.DeleteHost(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrHostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "host not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleRotateHostToken replaces the host's ingestion token. The old
// token stops working immediately.
func (s *Server) handleRotateHostToken(c *gin.Context) {
	host, err := s.store.GetHost(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrHostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "host not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	host.Token = uuid.New().String()
	if err := s.store.UpdateHost(c.Request.Context(), host); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logrus.WithField("host", host.Name).Info("Host token rotated")
	c.JSON(http.StatusOK, gin.H{"id": host.ID, "token": host.Token})
}

func (s *Server) handleListHeartbeats(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	heartbeats, err := s.store.GetHeartbeats(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"heartbeats": heartbeats, "count": len(heartbeats)})
}

// --- services ---

type serviceRequest struct {
	Name                    string            `json:"name" binding:"required"`
	EndpointURL             string            `json:"endpoint_url" binding:"required"`
	Method                  string            `json:"method"`
	ExpectedStatusCode      int               `json:"expected_status_code"`
	ExpectedResponsePattern string            `json:"expected_response_pattern"`
	TimeoutSeconds          int               `json:"timeout_seconds"`
	PollFrequencySeconds    int               `json:"poll_frequency_seconds"`
	AuthType                string            `json:"auth_type"`
	AuthConfig              map[string]string `json:"auth_config"`
	AlertThreshold          int               `json:"alert_threshold"`
	Enabled                 *bool             `json:"enabled"`
}

func (s *Server) handleListServices(c *gin.Context) {
	services, err := s.store.GetServices(c.Request.Context(), false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services, "count": len(services)})
}

func (s *Server) handleCreateService(c *gin.Context) {
	var req serviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc := &database.Service{
		ID:                      uuid.New().String(),
		Name:                    req.Name,
		EndpointURL:             req.EndpointURL,
		Method:                  req.Method,
		ExpectedStatusCode:      req.ExpectedStatusCode,
		ExpectedResponsePattern: req.ExpectedResponsePattern,
		TimeoutSeconds:          req.TimeoutSeconds,
		PollFrequencySeconds:    req.PollFrequencySeconds,
		AuthType:                req.AuthType,
		AuthConfig:              req.AuthConfig,
		AlertThreshold:          req.AlertThreshold,
		Status:                  database.ServiceUnknown,
		Enabled:                 true,
	}
	if req.Enabled != nil {
		svc.Enabled = *req.Enabled
	}
	applyServiceDefaults(svc)

	if err := s.store.CreateService(c.Request.Context(), svc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logrus.WithField("service", svc.Name).Info("Service created")
	c.JSON(http.StatusCreated, svc)
}

func applyServiceDefaults(svc *database.Service) {
	if svc.Method == "" {
		svc.Method = http.MethodGet
	}
	if svc.ExpectedStatusCode == 0 {
		svc.ExpectedStatusCode = http.StatusOK
	}
	if svc.TimeoutSeconds <= 0 {
		svc.TimeoutSeconds = 30
	}
	if svc.PollFrequencySeconds <= 0 {
		svc.PollFrequencySeconds = 60
	}
	if svc.AlertThreshold <= 0 {
		svc.AlertThreshold = 3
	}
}

func (s *Server) handleGetService(c *gin.Context) {
	svc, err := s.store.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrServiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (s *Server) handleUpdateService(c *gin.Context) {
	svc, err := s.store.GetService(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrServiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req serviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svc.Name = req.Name
	svc.EndpointURL = req.EndpointURL
	svc.Method = req.Method
	svc.ExpectedStatusCode = req.ExpectedStatusCode
	svc.ExpectedResponsePattern = req.ExpectedResponsePattern
	svc.TimeoutSeconds = req.TimeoutSeconds
	svc.PollFrequencySeconds = req.PollFrequencySeconds
	svc.AuthType = req.AuthType
	svc.AuthConfig = req.AuthConfig
	svc.AlertThreshold = req.AlertThreshold
	if req.Enabled != nil {
		svc.Enabled = *req.Enabled
	}
	applyServiceDefaults(svc)

	if err := s.store.UpdateService(c.Request.Context(), svc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (s *Server) handleDeleteService(c *gin.Context) {
	err := s.store.DeleteService(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrServiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleListServiceChecks(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	checks, err := s.store.GetServiceChecks(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checks": checks, "count": len(checks)})
}

// --- alerts ---

func (s *Server) handleListAlerts(c *gin.Context) {
	filters := database.AlertFilters{
		HostID:    c.Query("host_id"),
		ServiceID: c.Query("service_id"),
		Kind:      database.AlertKind(c.Query("kind")),
		Severity:  database.Severity(c.Query("severity")),
		Limit:     intQuery(c, "limit", 100),
	}
	if v := c.Query("acknowledged"); v != "" {
		ack := v == "true"
		filters.Acknowledged = &ack
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		filters.Since = &since
	}

	alerts, err := s.store.GetAlerts(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleGetAlert(c *gin.Context) {
	alert, err := s.store.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) handleAcknowledgeAlert(c *gin.Context) {
	err := s.store.AcknowledgeAlert(c.Request.Context(), c.Param("id"), time.Now())
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

// --- stats ---

func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()

	hosts, err := s.store.GetHosts(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	services, err := s.store.GetServices(ctx, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	unacked := false
	openAlerts, err := s.store.GetAlerts(ctx, database.AlertFilters{Acknowledged: &unacked})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	hostsByStatus := map[database.HostStatus]int{}
	for _, h := range hosts {
		hostsByStatus[h.Status]++
	}
	servicesByStatus := map[database.ServiceStatus]int{}
	for _, svc := range services {
		servicesByStatus[svc.Status]++
	}

	c.JSON(http.StatusOK, gin.H{
		"hosts": gin.H{
			"total":     len(hosts),
			"by_status": hostsByStatus,
		},
		"services": gin.H{
			"total":     len(services),
			"by_status": servicesByStatus,
		},
		"open_alerts": len(openAlerts),
	})
}

func intQuery(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
