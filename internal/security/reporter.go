package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/planchoque/portal/internal/alert"
	"github.com/planchoque/portal/internal/metrics"
	"github.com/planchoque/portal/internal/rbac"
)

// Attempt describe un acceso denegado por rol.
type Attempt struct {
	Path          string
	Subject       string
	ActualRole    rbac.Role
	RequiredRoles []rbac.Role
	UserAgent     string
	RequestID     string
}

// Options ajusta el envío remoto.
type Options struct {
	SendTimeout time.Duration
	// RatePerSecond limita los envíos remotos; cero desactiva el límite.
	RatePerSecond float64
	Burst         int
	Metrics       ReportRecorder
}

// ReportRecorder cuenta los resultados del envío remoto.
type ReportRecorder interface {
	SecurityReport(result string)
}

// Reporter registra accesos denegados: alerta local y envío remoto best-effort.
type Reporter struct {
	alerts  *alert.Store
	client  LogClient
	limiter *rate.Limiter
	timeout time.Duration
	metrics ReportRecorder
	logger  zerolog.Logger
	now     func() time.Time
}

// NewReporter crea el reporter. Un client nil equivale a NoopLogClient.
func NewReporter(alerts *alert.Store, client LogClient, opts Options, logger zerolog.Logger) *Reporter {
	if client == nil {
		client = NoopLogClient{}
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &Reporter{
		alerts:  alerts,
		client:  client,
		limiter: limiter,
		timeout: timeout,
		metrics: opts.Metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Report agrega la alerta y dispara el envío remoto sin esperar. Nunca falla.
func (r *Reporter) Report(ctx context.Context, attempt Attempt) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("security: report recuperado")
		}
	}()

	msg := Message(attempt)
	if r.alerts != nil {
		r.alerts.Add(attempt.Subject, msg, alert.SeverityError)
	}

	r.logger.Warn().
		Str("path", attempt.Path).
		Str("subject", attempt.Subject).
		Str("role", string(attempt.ActualRole)).
		Strs("required", rbac.Strings(attempt.RequiredRoles)).
		Str("request_id", attempt.RequestID).
		Msg("security: acceso no autorizado")

	if r.limiter != nil && !r.limiter.Allow() {
		r.logger.Debug().Str("path", attempt.Path).Msg("security: envío remoto descartado por límite")
		r.record(metrics.ReportDropped)
		return
	}

	entry := LogEntry{
		Route:        attempt.Path,
		UserRole:     string(attempt.ActualRole),
		RequiredRole: rbac.Strings(attempt.RequiredRoles),
		Timestamp:    r.now().UTC(),
		UserAgent:    attempt.UserAgent,
	}

	// desacoplado del request: puede terminar después de la respuesta
	go r.send(context.WithoutCancel(ctx), entry)
}

func (r *Reporter) send(parent context.Context, entry LogEntry) {
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			r.logger.Debug().Err(err).Str("route", entry.Route).Msg("security: envío remoto falló")
			r.record(metrics.ReportFailed)
			return
		}
		r.record(metrics.ReportSent)
	}()

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()
	err = r.client.Send(ctx, entry)
}

func (r *Reporter) record(result string) {
	if r.metrics != nil {
		r.metrics.SecurityReport(result)
	}
}

// Message arma el texto de la alerta.
func Message(attempt Attempt) string {
	role := string(attempt.ActualRole)
	if role == "" {
		role = "desconocido"
	}
	required := strings.Join(rbac.Strings(attempt.RequiredRoles), ", ")
	if required == "" {
		required = "ninguno"
	}
	return fmt.Sprintf("Acceso no autorizado a %s: el rol '%s' no tiene permiso (requerido: %s)", attempt.Path, role, required)
}
